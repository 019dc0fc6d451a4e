// Package tx prepares transactions for signing: sender resolution, gas
// estimation with a multiplier, broadcasting and simulation.
package tx

import (
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request is a transaction in eth_sendTransaction form. Nil fields are unset.
type Request struct {
	From                 *common.Address `json:"from,omitempty"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
}

// Merge returns r with every field set in o copied over it.
func (r Request) Merge(o Request) Request {
	out := r.clone()
	if o.From != nil {
		out.From = ptr(*o.From)
	}
	if o.To != nil {
		out.To = ptr(*o.To)
	}
	if o.Gas != nil {
		out.Gas = ptr(*o.Gas)
	}
	if o.GasPrice != nil {
		out.GasPrice = cloneBig(o.GasPrice)
	}
	if o.MaxFeePerGas != nil {
		out.MaxFeePerGas = cloneBig(o.MaxFeePerGas)
	}
	if o.MaxPriorityFeePerGas != nil {
		out.MaxPriorityFeePerGas = cloneBig(o.MaxPriorityFeePerGas)
	}
	if o.Value != nil {
		out.Value = cloneBig(o.Value)
	}
	if o.Data != nil {
		out.Data = slices.Clone(o.Data)
	}
	if o.Nonce != nil {
		out.Nonce = ptr(*o.Nonce)
	}
	return out
}

// CallMsg converts r for go-ethereum clients.
func (r Request) CallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		To:        r.To,
		GasPrice:  toBig(r.GasPrice),
		GasFeeCap: toBig(r.MaxFeePerGas),
		GasTipCap: toBig(r.MaxPriorityFeePerGas),
		Value:     toBig(r.Value),
		Data:      r.Data,
	}
	if r.From != nil {
		msg.From = *r.From
	}
	if r.Gas != nil {
		msg.Gas = uint64(*r.Gas)
	}
	return msg
}

func (r Request) clone() Request {
	out := r
	if r.From != nil {
		out.From = ptr(*r.From)
	}
	if r.To != nil {
		out.To = ptr(*r.To)
	}
	if r.Gas != nil {
		out.Gas = ptr(*r.Gas)
	}
	if r.Nonce != nil {
		out.Nonce = ptr(*r.Nonce)
	}
	out.GasPrice = cloneBig(r.GasPrice)
	out.MaxFeePerGas = cloneBig(r.MaxFeePerGas)
	out.MaxPriorityFeePerGas = cloneBig(r.MaxPriorityFeePerGas)
	out.Value = cloneBig(r.Value)
	out.Data = slices.Clone(r.Data)
	return out
}

func ptr[T any](v T) *T { return &v }

func cloneBig(b *hexutil.Big) *hexutil.Big {
	if b == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(b.ToInt()))
}

func toBig(b *hexutil.Big) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b.ToInt())
}
