// Package ens resolves ENS names through any eth_call capable client.
package ens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// RegistryAddress is the ENS registry, identical on mainnet and Sepolia.
var RegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

var (
	// ErrNoResolver means the name has no resolver set.
	ErrNoResolver = errors.New("no resolver set")
	// ErrNoRecord means the resolver has no record for the name.
	ErrNoRecord = errors.New("no record")
)

// Function selectors.
var (
	selResolver = []byte{0x01, 0x78, 0xb8, 0xbf} // resolver(bytes32)
	selAddr     = []byte{0x3b, 0x3b, 0x57, 0xde} // addr(bytes32)
	selName     = []byte{0x69, 0x1f, 0x34, 0x31} // name(bytes32)
)

// Resolve resolves name to an address: registry resolver(node), then addr(node).
func Resolve(ctx context.Context, caller ethereum.ContractCaller, name string) (common.Address, error) {
	node := Namehash(name)

	resolver, err := lookupResolver(ctx, caller, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolving %q: %w", name, err)
	}

	out, err := call(ctx, caller, resolver, selAddr, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("querying ENS resolver: %w", err)
	}
	addr, ok := wordAddress(out)
	if !ok {
		return common.Address{}, fmt.Errorf("resolving %q: %w", name, ErrNoRecord)
	}
	return addr, nil
}

// ReverseLookup returns the primary name of address via addr.reverse.
func ReverseLookup(ctx context.Context, caller ethereum.ContractCaller, address common.Address) (string, error) {
	node := Namehash(strings.ToLower(strings.TrimPrefix(address.Hex(), "0x")) + ".addr.reverse")

	resolver, err := lookupResolver(ctx, caller, node)
	if err != nil {
		return "", fmt.Errorf("reverse lookup %s: %w", address.Hex(), err)
	}

	out, err := call(ctx, caller, resolver, selName, node)
	if err != nil {
		return "", fmt.Errorf("querying reverse resolver: %w", err)
	}
	name := decodeString(out)
	if name == "" {
		return "", fmt.Errorf("reverse lookup %s: %w", address.Hex(), ErrNoRecord)
	}
	return name, nil
}

// Namehash implements EIP-137. Names must already be normalised.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}

	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := keccak256([]byte(labels[i]))
		node = common.BytesToHash(keccak256(node.Bytes(), label))
	}
	return node
}

func lookupResolver(ctx context.Context, caller ethereum.ContractCaller, node common.Hash) (common.Address, error) {
	out, err := call(ctx, caller, RegistryAddress, selResolver, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("querying ENS registry: %w", err)
	}
	addr, ok := wordAddress(out)
	if !ok {
		return common.Address{}, ErrNoResolver
	}
	return addr, nil
}

func call(ctx context.Context, caller ethereum.ContractCaller, to common.Address, selector []byte, node common.Hash) ([]byte, error) {
	data := append(append([]byte{}, selector...), node.Bytes()...)
	return caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// wordAddress reads the address in a 32-byte ABI word. The zero address
// counts as absent.
func wordAddress(out []byte) (common.Address, bool) {
	if len(out) < 32 {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(out[12:32])
	return addr, addr != (common.Address{})
}

// decodeString decodes an ABI-encoded dynamic string return value.
func decodeString(out []byte) string {
	if len(out) < 64 {
		return ""
	}
	offset := new(big.Int).SetBytes(out[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(out)) {
		return ""
	}
	start := offset.Uint64()
	length := new(big.Int).SetBytes(out[start : start+32])
	if !length.IsUint64() {
		return ""
	}
	end := min(start+32+length.Uint64(), uint64(len(out)))
	return string(out[start+32 : end])
}
