package tx

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNoProvider is returned when no gas estimator can be resolved.
var ErrNoProvider = errors.New("no provider available for gas estimation")

// Signer authorises transactions for one account.
type Signer interface {
	Address(ctx context.Context) (common.Address, error)
	SendTransaction(ctx context.Context, req Request) (common.Hash, error)
	Call(ctx context.Context, req Request) ([]byte, error)
}

// Estimator estimates gas for a request.
type Estimator interface {
	EstimateGas(ctx context.Context, req Request) (uint64, error)
}

// CallMsgEstimator adapts a go-ethereum gas estimator, such as an rpc.Pool.
type CallMsgEstimator struct {
	Backend ethereum.GasEstimator
}

func (e CallMsgEstimator) EstimateGas(ctx context.Context, req Request) (uint64, error) {
	return e.Backend.EstimateGas(ctx, req.CallMsg())
}

// Prepared is a transaction with sender and gas limit filled in, bound to
// the signer that prepared it. It is never modified after Initialize.
type Prepared struct {
	req    Request
	signer Signer
}

// Initialize resolves the sender from signer, estimates gas through est (or
// the signer itself when est is nil) and scales the estimate by
// gasMultiplier thousandths.
func Initialize(ctx context.Context, draft Request, signer Signer, gasMultiplier uint64, est Estimator) (*Prepared, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if est == nil {
		se, ok := signer.(Estimator)
		if !ok {
			return nil, ErrNoProvider
		}
		est = se
	}

	from, err := signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving sender: %w", err)
	}
	req := draft.Merge(Request{From: &from})

	estimate, err := est.EstimateGas(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("estimating gas: %w", err)
	}
	gas, err := ApplyMultiplier(estimate, gasMultiplier)
	if err != nil {
		return nil, err
	}
	req.Gas = ptr(hexutil.Uint64(gas))

	return &Prepared{req: req, signer: signer}, nil
}

// Request returns a copy of the prepared request.
func (p *Prepared) Request() Request { return p.req.clone() }

// From returns the resolved sender.
func (p *Prepared) From() common.Address { return *p.req.From }

// Gas returns the scaled gas limit.
func (p *Prepared) Gas() uint64 { return uint64(*p.req.Gas) }

// Send broadcasts the transaction through the signer.
func (p *Prepared) Send(ctx context.Context) (common.Hash, error) {
	return p.signer.SendTransaction(ctx, p.req.clone())
}

// Call simulates the transaction with overrides applied on top.
func (p *Prepared) Call(ctx context.Context, overrides Request) ([]byte, error) {
	return p.signer.Call(ctx, p.req.Merge(overrides))
}
