package chain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const caip2Namespace = "eip155"

// HexID encodes a chain id the way wallets expect it ("0x38").
func HexID(id uint64) string {
	return hexutil.EncodeUint64(id)
}

// CAIP2 returns the CAIP-2 reference for an EVM chain ("eip155:56").
func CAIP2(id uint64) string {
	return caip2Namespace + ":" + strconv.FormatUint(id, 10)
}

// ParseCAIP2 extracts the chain id from an "eip155:<id>" reference.
func ParseCAIP2(s string) (uint64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] != caip2Namespace {
		return 0, fmt.Errorf("invalid CAIP-2 chain %q", s)
	}
	return strconv.ParseUint(parts[1], 10, 64)
}

// DecodeID converts a hex string, decimal string, integer or *big.Int into a
// chain id without consulting any registry.
func DecodeID(v any) (uint64, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, ok := new(big.Int).SetString(s[2:], 16)
			if !ok || !n.IsUint64() {
				return 0, fmt.Errorf("invalid hex chain id %q", x)
			}
			return n.Uint64(), nil
		}
		return strconv.ParseUint(s, 10, 64)
	case int:
		return nonNegative(int64(x))
	case int32:
		return nonNegative(int64(x))
	case int64:
		return nonNegative(x)
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return 0, fmt.Errorf("invalid chain id %v", x)
		}
		return uint64(x), nil
	case *big.Int:
		if x == nil || !x.IsUint64() {
			return 0, fmt.Errorf("invalid chain id %v", x)
		}
		return x.Uint64(), nil
	case *hexutil.Big:
		return DecodeID((*big.Int)(x))
	case hexutil.Uint64:
		return uint64(x), nil
	default:
		return 0, fmt.Errorf("unsupported chain id type %T", v)
	}
}

// ParseID decodes v and reports whether it names a registered chain.
func (r *Registry) ParseID(v any) (uint64, bool) {
	id, err := DecodeID(v)
	if err != nil || !r.Has(id) {
		return 0, false
	}
	return id, true
}

// ParseIDOrFail is ParseID returning ErrUnsupportedChain for unknown values.
func (r *Registry) ParseIDOrFail(v any) (uint64, error) {
	id, ok := r.ParseID(v)
	if !ok {
		return 0, fmt.Errorf("chain %v: %w", v, ErrUnsupportedChain)
	}
	return id, nil
}

func nonNegative(n int64) (uint64, error) {
	if n < 0 {
		return 0, fmt.Errorf("invalid chain id %d", n)
	}
	return uint64(n), nil
}
