package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/ens"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ErrSendNotSupported is returned by Pool.SendTransaction. Read pools never sign.
var ErrSendNotSupported = errors.New("cannot send transactions")

// Pool spreads calls for one chain over a fixed, ordered list of endpoints.
// Each call goes to the next endpoint in turn. Errors are returned as-is;
// there is no retry and no failover.
type Pool struct {
	chainID   uint64
	endpoints []*Endpoint
	picker    picker
	log       *zap.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	mode       LimiterMode
	shared     *Limiter
	perRequest int
	interval   time.Duration
	maxBatch   int
	metrics    *Metrics
	log        *zap.Logger
	httpClient *http.Client
}

// WithSharedLimiter puts every endpoint of the pool behind l. Pass the same
// limiter to several pools to share it across chains.
func WithSharedLimiter(l *Limiter) PoolOption {
	return func(c *poolConfig) {
		c.mode = LimiterShared
		c.shared = l
	}
}

// WithPrivateLimits gives every endpoint its own limiter.
func WithPrivateLimits(requestsPerInterval int, interval time.Duration) PoolOption {
	return func(c *poolConfig) {
		c.mode = LimiterPrivate
		c.perRequest = requestsPerInterval
		c.interval = interval
	}
}

// WithMaxBatchSize sets the batching threshold of every endpoint.
func WithMaxBatchSize(n int) PoolOption {
	return func(c *poolConfig) { c.maxBatch = n }
}

// WithMetrics records requests in m.
func WithMetrics(m *Metrics) PoolOption {
	return func(c *poolConfig) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PoolOption {
	return func(c *poolConfig) { c.log = l }
}

// WithPoolHTTPClient overrides the HTTP client of every endpoint.
func WithPoolHTTPClient(hc *http.Client) PoolOption {
	return func(c *poolConfig) { c.httpClient = hc }
}

// NewPool dials every URL. An empty list fails with chain.ErrInvalidChainConfig.
func NewPool(ctx context.Context, chainID uint64, urls []string, opts ...PoolOption) (*Pool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("chain %d has no rpc urls: %w", chainID, chain.ErrInvalidChainConfig)
	}

	cfg := poolConfig{mode: LimiterNone, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log.Named("rpc.pool").With(zap.Uint64("chainID", chainID))

	p := &Pool{chainID: chainID, log: log}
	for _, url := range urls {
		epOpts := []EndpointOption{
			WithChainLabel(chainID),
			WithBatchSize(cfg.maxBatch),
			WithEndpointMetrics(cfg.metrics),
			WithEndpointLogger(cfg.log.Named("rpc.endpoint")),
		}
		if cfg.httpClient != nil {
			epOpts = append(epOpts, WithHTTPClient(cfg.httpClient))
		}

		switch cfg.mode {
		case LimiterShared:
			if cfg.shared != nil {
				epOpts = append(epOpts, WithLimiter(cfg.shared))
			}
		case LimiterPrivate:
			l, err := NewLimiter(cfg.perRequest, cfg.interval)
			if err != nil {
				p.Close()
				return nil, err
			}
			epOpts = append(epOpts, WithLimiter(l.Instrument(cfg.metrics)))
		}

		ep, err := Dial(ctx, url, epOpts...)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.endpoints = append(p.endpoints, ep)
	}

	log.Debug("pool ready", zap.Int("endpoints", len(p.endpoints)), zap.String("limiter", string(cfg.mode)))
	return p, nil
}

// ChainID returns the chain this pool serves.
func (p *Pool) ChainID() uint64 { return p.chainID }

// Endpoints returns the endpoints in rotation order.
func (p *Pool) Endpoints() []*Endpoint {
	return append([]*Endpoint(nil), p.endpoints...)
}

// URLs returns the endpoint URLs in rotation order.
func (p *Pool) URLs() []string {
	urls := make([]string, len(p.endpoints))
	for i, ep := range p.endpoints {
		urls[i] = ep.URL()
	}
	return urls
}

// Next returns the endpoint for the next call and advances the rotation.
func (p *Pool) Next() *Endpoint {
	return p.endpoints[p.picker.next(len(p.endpoints))]
}

// Close closes every endpoint.
func (p *Pool) Close() {
	for _, ep := range p.endpoints {
		ep.Close()
	}
}

// CallContext performs a raw JSON-RPC call on the next endpoint.
func (p *Pool) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return p.Next().CallContext(ctx, result, method, args...)
}

// BatchCallContext sends a batch to the next endpoint.
func (p *Pool) BatchCallContext(ctx context.Context, b []gethrpc.BatchElem) error {
	return p.Next().BatchCallContext(ctx, b)
}

// EstimateGas estimates gas on the next endpoint.
func (p *Pool) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return p.Next().EstimateGas(ctx, msg)
}

// CallContract runs eth_call on the next endpoint.
func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return p.Next().CallContract(ctx, msg, block)
}

// BlockNumber returns the latest block number from the next endpoint.
func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	return p.Next().BlockNumber(ctx)
}

// TransactionReceipt fetches a receipt from the next endpoint.
func (p *Pool) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return p.Next().TransactionReceipt(ctx, hash)
}

// PendingNonceAt fetches the pending nonce from the next endpoint.
func (p *Pool) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return p.Next().PendingNonceAt(ctx, account)
}

// SuggestGasPrice fetches a gas price from the next endpoint.
func (p *Pool) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return p.Next().SuggestGasPrice(ctx)
}

// ResolveName resolves an ENS name. Each underlying eth_call advances the rotation.
func (p *Pool) ResolveName(ctx context.Context, name string) (common.Address, error) {
	return ens.Resolve(ctx, p, name)
}

// SendTransaction always fails: signing belongs to the wallet, not the read pool.
func (p *Pool) SendTransaction(context.Context, *types.Transaction) error {
	return ErrSendNotSupported
}
