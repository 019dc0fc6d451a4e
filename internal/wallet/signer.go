package wallet

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signer sends transactions and signs messages through the connected
// wallet. It satisfies tx.Signer and tx.Estimator.
type Signer struct {
	provider eip1193.Provider
	address  common.Address
}

var (
	_ tx.Signer    = (*Signer)(nil)
	_ tx.Estimator = (*Signer)(nil)
)

func newSigner(p eip1193.Provider, account string) (*Signer, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: wallet returned account %q", ErrSignerUnavailable, account)
	}
	return &Signer{provider: p, address: common.HexToAddress(account)}, nil
}

// NewSigner binds a signer to an account on p.
func NewSigner(p eip1193.Provider, account common.Address) *Signer {
	return &Signer{provider: p, address: account}
}

func (s *Signer) Address(context.Context) (common.Address, error) { return s.address, nil }

// Provider returns the wallet provider the signer talks to.
func (s *Signer) Provider() eip1193.Provider { return s.provider }

// SendTransaction asks the wallet to sign and broadcast req.
func (s *Signer) SendTransaction(ctx context.Context, req tx.Request) (common.Hash, error) {
	if req.From == nil {
		req.From = &s.address
	}
	return eip1193.Call[common.Hash](ctx, s.provider, "eth_sendTransaction", []any{req})
}

// Call simulates req against the latest block.
func (s *Signer) Call(ctx context.Context, req tx.Request) ([]byte, error) {
	if req.From == nil {
		req.From = &s.address
	}
	out, err := eip1193.Call[hexutil.Bytes](ctx, s.provider, "eth_call", []any{req, "latest"})
	return out, err
}

func (s *Signer) EstimateGas(ctx context.Context, req tx.Request) (uint64, error) {
	if req.From == nil {
		req.From = &s.address
	}
	gas, err := eip1193.Call[hexutil.Uint64](ctx, s.provider, "eth_estimateGas", []any{req})
	return uint64(gas), err
}

// SignMessage signs msg with personal_sign.
func (s *Signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	sig, err := eip1193.Call[hexutil.Bytes](ctx, s.provider, "personal_sign",
		[]any{hexutil.Encode(msg), s.address})
	return sig, err
}
