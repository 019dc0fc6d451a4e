package rpc_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/ens"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRejectsEmptyList(t *testing.T) {
	_, err := rpc.NewPool(context.Background(), 1, nil)
	assert.ErrorIs(t, err, chain.ErrInvalidChainConfig)
}

func TestPoolVisitsEndpointsCyclically(t *testing.T) {
	log := &hitLog{}
	a := blockServer(t, "A", "0x1", log)
	b := blockServer(t, "B", "0x1", log)
	c := blockServer(t, "C", "0x1", log)

	pool, err := rpc.NewPool(context.Background(), 1, []string{a.URL, b.URL, c.URL})
	require.NoError(t, err)
	defer pool.Close()

	for range 6 {
		_, err := pool.BlockNumber(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"A", "B", "C", "A", "B", "C"}, log.all())
}

func TestPoolDoesNotFailOver(t *testing.T) {
	log := &hitLog{}
	a := blockServer(t, "A", "0x10", log)
	b := newRPCServer(t, func(string, []json.RawMessage) (any, *rpcErr) {
		log.add("B")
		return nil, &rpcErr{Code: -32005, Message: "rate limited"}
	})

	pool, err := rpc.NewPool(context.Background(), 1, []string{a.URL, b.URL})
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	n, err := pool.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)

	_, err = pool.BlockNumber(ctx)
	require.Error(t, err, "error from B must propagate, not be retried on A")
	assert.Contains(t, err.Error(), "rate limited")
	var rpcErr gethrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32005, rpcErr.ErrorCode())

	_, err = pool.BlockNumber(ctx)
	require.NoError(t, err)
	_, err = pool.BlockNumber(ctx)
	require.Error(t, err, "failing endpoint is retried on its next turn")

	assert.Equal(t, []string{"A", "B", "A", "B"}, log.all())
}

func TestPoolSendTransactionAlwaysFails(t *testing.T) {
	a := blockServer(t, "A", "0x1", nil)
	pool, err := rpc.NewPool(context.Background(), 1, []string{a.URL})
	require.NoError(t, err)
	defer pool.Close()

	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000})
	assert.ErrorIs(t, pool.SendTransaction(context.Background(), tx), rpc.ErrSendNotSupported)
	assert.Equal(t, int64(0), a.posts.Load())
}

func TestPoolEstimateGasAndCall(t *testing.T) {
	srv := newRPCServer(t, func(method string, _ []json.RawMessage) (any, *rpcErr) {
		switch method {
		case "eth_estimateGas":
			return "0x5208", nil
		case "eth_call":
			return "0x2a", nil
		}
		return nil, &rpcErr{Code: -32601, Message: "method not found"}
	})

	pool, err := rpc.NewPool(context.Background(), 56, []string{srv.URL})
	require.NoError(t, err)
	defer pool.Close()

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	msg := ethereum.CallMsg{From: common.HexToAddress("0x01"), To: &to}

	gas, err := pool.EstimateGas(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	out, err := pool.CallContract(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, out)
	assert.Equal(t, uint64(56), pool.ChainID())
}

func TestPoolBatchRespectsMaxBatchSize(t *testing.T) {
	srv := blockServer(t, "A", "0x7", nil)
	pool, err := rpc.NewPool(context.Background(), 1, []string{srv.URL}, rpc.WithMaxBatchSize(2))
	require.NoError(t, err)
	defer pool.Close()

	results := make([]string, 5)
	batch := make([]gethrpc.BatchElem, 5)
	for i := range batch {
		batch[i] = gethrpc.BatchElem{Method: "eth_blockNumber", Result: &results[i]}
	}

	require.NoError(t, pool.BatchCallContext(context.Background(), batch))
	assert.Equal(t, int64(3), srv.posts.Load(), "5 calls with batch size 2 need 3 requests")
	for i, elem := range batch {
		require.NoError(t, elem.Error)
		assert.Equal(t, "0x7", results[i])
	}
}

func TestSharedLimiterSpansPools(t *testing.T) {
	const interval = 300 * time.Millisecond
	shared, err := rpc.NewLimiter(2, interval)
	require.NoError(t, err)

	a := blockServer(t, "A", "0x1", nil)
	b := blockServer(t, "B", "0x1", nil)

	ctx := context.Background()
	eth, err := rpc.NewPool(ctx, 1, []string{a.URL}, rpc.WithSharedLimiter(shared))
	require.NoError(t, err)
	defer eth.Close()
	bsc, err := rpc.NewPool(ctx, 56, []string{b.URL}, rpc.WithSharedLimiter(shared))
	require.NoError(t, err)
	defer bsc.Close()

	start := time.Now()
	_, err = eth.BlockNumber(ctx)
	require.NoError(t, err)
	_, err = bsc.BlockNumber(ctx)
	require.NoError(t, err)
	_, err = eth.BlockNumber(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), interval-20*time.Millisecond)
	assert.Same(t, eth.Endpoints()[0].Limiter(), bsc.Endpoints()[0].Limiter())
}

func TestPrivateLimitsPerEndpoint(t *testing.T) {
	a := blockServer(t, "A", "0x1", nil)
	b := blockServer(t, "B", "0x1", nil)

	ctx := context.Background()
	pool, err := rpc.NewPool(ctx, 1, []string{a.URL, b.URL}, rpc.WithPrivateLimits(1, time.Hour))
	require.NoError(t, err)
	defer pool.Close()

	eps := pool.Endpoints()
	require.NotNil(t, eps[0].Limiter())
	assert.NotSame(t, eps[0].Limiter(), eps[1].Limiter())

	start := time.Now()
	_, err = pool.BlockNumber(ctx)
	require.NoError(t, err)
	_, err = pool.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "each endpoint has its own token")

	_, err = rpc.NewPool(ctx, 1, []string{a.URL}, rpc.WithPrivateLimits(0, time.Second))
	assert.ErrorIs(t, err, rpc.ErrInvalidLimit)
}

func TestPoolResolveName(t *testing.T) {
	resolver := common.HexToAddress("0x4976fb03C32e5B8cfe2b6cCB31c09Ba78EBaBa41")
	target := common.HexToAddress("0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")

	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcErr) {
		var call struct {
			To string `json:"to"`
		}
		_ = json.Unmarshal(params[0], &call)
		switch {
		case strings.EqualFold(call.To, ens.RegistryAddress.Hex()):
			return "0x" + common.Bytes2Hex(common.LeftPadBytes(resolver.Bytes(), 32)), nil
		case strings.EqualFold(call.To, resolver.Hex()):
			return "0x" + common.Bytes2Hex(common.LeftPadBytes(target.Bytes(), 32)), nil
		}
		return "0x", nil
	})

	pool, err := rpc.NewPool(context.Background(), 1, []string{srv.URL})
	require.NoError(t, err)
	defer pool.Close()

	addr, err := pool.ResolveName(context.Background(), "vitalik.eth")
	require.NoError(t, err)
	assert.Equal(t, target, addr)
}

func TestPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := rpc.NewMetrics(reg)
	require.NoError(t, err)

	srv := blockServer(t, "A", "0x1", nil)
	limiter, err := rpc.NewLimiter(10, time.Second)
	require.NoError(t, err)
	limiter.Instrument(m)

	pool, err := rpc.NewPool(context.Background(), 1, []string{srv.URL}, rpc.WithMetrics(m), rpc.WithSharedLimiter(limiter))
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.BlockNumber(context.Background())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "w3link_rpc_requests_total", "w3link_rpc_limiter_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = rpc.NewMetrics(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestBenchmarkMarksStaleAndDownEndpoints(t *testing.T) {
	fresh := blockServer(t, "fresh", "0x64", nil) // 100
	stale := blockServer(t, "stale", "0x5a", nil) // 90
	down := newRPCServer(t, func(string, []json.RawMessage) (any, *rpcErr) {
		return nil, &rpcErr{Code: -32000, Message: "header not found"}
	})

	pool, err := rpc.NewPool(context.Background(), 1, []string{fresh.URL, stale.URL, down.URL})
	require.NoError(t, err)
	defer pool.Close()

	results := rpc.Benchmark(context.Background(), pool)
	require.Len(t, results, 3)

	assert.True(t, results[0].Healthy)
	assert.Equal(t, uint64(100), results[0].BlockNumber)
	assert.False(t, results[1].Healthy, "10 blocks behind is stale")
	assert.False(t, results[2].Healthy)
	assert.Error(t, results[2].Err)

	fastest := rpc.Fastest(results)
	require.Len(t, fastest, 1)
	assert.Equal(t, fresh.URL, fastest[0].URL)
}
