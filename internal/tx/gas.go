package tx

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// DefaultGasMultiplier is ×2.0 in thousandths.
const DefaultGasMultiplier uint64 = 2000

// ErrInvalidMultiplier is returned for a zero gas multiplier.
var ErrInvalidMultiplier = errors.New("gas multiplier must be positive")

// ApplyMultiplier returns estimate * multiplier / 1000, truncated.
func ApplyMultiplier(estimate, multiplier uint64) (uint64, error) {
	if multiplier == 0 {
		return 0, ErrInvalidMultiplier
	}
	gas := new(big.Int).SetUint64(estimate)
	gas.Mul(gas, new(big.Int).SetUint64(multiplier))
	gas.Quo(gas, big.NewInt(1000))
	if !gas.IsUint64() {
		return 0, fmt.Errorf("gas limit overflows uint64: %s", gas)
	}
	return gas.Uint64(), nil
}

// ParseEther converts a decimal ether amount ("0.25") to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", s)
	}
	frac += strings.Repeat("0", 18-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || wei.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return wei, nil
}

// WeiToGwei converts a Wei value to Gwei as float64.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetFloat64(1e9),
	).Float64()
	return f
}
