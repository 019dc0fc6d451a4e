package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// GasInfo holds current gas pricing for a chain.
type GasInfo struct {
	GasPrice *big.Int // eth_gasPrice, in wei
	BaseFee  *big.Int // latest block base fee, nil on legacy chains
}

// Display returns the price worth showing and whether the chain uses
// EIP-1559 fees.
func (g *GasInfo) Display() (*big.Int, bool) {
	if g.BaseFee != nil && g.BaseFee.Sign() > 0 {
		return g.BaseFee, true
	}
	return g.GasPrice, false
}

type blockFees struct {
	BaseFee *hexutil.Big `json:"baseFeePerGas"`
}

// GasInfo fetches the gas price and the latest base fee in one batch.
func (p *Pool) GasInfo(ctx context.Context) (*GasInfo, error) {
	var (
		price hexutil.Big
		head  *blockFees
	)
	batch := []gethrpc.BatchElem{
		{Method: "eth_gasPrice", Result: &price},
		{Method: "eth_getBlockByNumber", Args: []any{"latest", false}, Result: &head},
	}
	if err := p.BatchCallContext(ctx, batch); err != nil {
		return nil, err
	}
	if batch[0].Error != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", batch[0].Error)
	}
	info := &GasInfo{GasPrice: price.ToInt()}
	// A failed block fetch only loses the base fee.
	if batch[1].Error == nil && head != nil && head.BaseFee != nil {
		info.BaseFee = head.BaseFee.ToInt()
	}
	return info, nil
}
