package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// Endpoint is a JSON-RPC transport to one URL. When a limiter is attached,
// every outgoing HTTP request first takes a token from it.
type Endpoint struct {
	url      string
	chainID  uint64
	client   *gethrpc.Client
	eth      *ethclient.Client
	limiter  *Limiter
	maxBatch int
	metrics  *Metrics
	log      *zap.Logger
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*endpointConfig)

type endpointConfig struct {
	chainID    uint64
	limiter    *Limiter
	maxBatch   int
	metrics    *Metrics
	log        *zap.Logger
	httpClient *http.Client
}

// WithLimiter gates the endpoint behind l.
func WithLimiter(l *Limiter) EndpointOption {
	return func(c *endpointConfig) { c.limiter = l }
}

// WithBatchSize splits batches into requests of at most n calls. Zero means unlimited.
func WithBatchSize(n int) EndpointOption {
	return func(c *endpointConfig) { c.maxBatch = n }
}

// WithEndpointMetrics records requests in m.
func WithEndpointMetrics(m *Metrics) EndpointOption {
	return func(c *endpointConfig) { c.metrics = m }
}

// WithEndpointLogger sets the logger.
func WithEndpointLogger(l *zap.Logger) EndpointOption {
	return func(c *endpointConfig) { c.log = l }
}

// WithChainLabel tags metrics and logs with a chain id.
func WithChainLabel(id uint64) EndpointOption {
	return func(c *endpointConfig) { c.chainID = id }
}

// WithHTTPClient overrides the HTTP client used for http(s) URLs.
func WithHTTPClient(hc *http.Client) EndpointOption {
	return func(c *endpointConfig) { c.httpClient = hc }
}

// Dial creates an endpoint for url. HTTP endpoints connect lazily.
func Dial(ctx context.Context, url string, opts ...EndpointOption) (*Endpoint, error) {
	cfg := endpointConfig{
		log:        zap.NewNop(),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := gethrpc.DialOptions(ctx, url, gethrpc.WithHTTPClient(cfg.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	return &Endpoint{
		url:      url,
		chainID:  cfg.chainID,
		client:   client,
		eth:      ethclient.NewClient(client),
		limiter:  cfg.limiter,
		maxBatch: cfg.maxBatch,
		metrics:  cfg.metrics,
		log:      cfg.log.With(zap.String("endpoint", url), zap.Uint64("chainID", cfg.chainID)),
	}, nil
}

// URL returns the endpoint URL.
func (e *Endpoint) URL() string { return e.url }

// Limiter returns the attached limiter, or nil.
func (e *Endpoint) Limiter() *Limiter { return e.limiter }

// Close releases the underlying client.
func (e *Endpoint) Close() { e.client.Close() }

// CallContext performs a raw JSON-RPC call.
func (e *Endpoint) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return e.do(ctx, method, func(ctx context.Context) error {
		return e.client.CallContext(ctx, result, method, args...)
	})
}

// BatchCallContext sends b in chunks of at most the configured batch size.
// Per-element errors are reported in each BatchElem.
func (e *Endpoint) BatchCallContext(ctx context.Context, b []gethrpc.BatchElem) error {
	size := e.maxBatch
	if size <= 0 {
		size = len(b)
	}
	for start := 0; start < len(b); start += size {
		chunk := b[start:min(start+size, len(b))]
		err := e.do(ctx, "batch", func(ctx context.Context) error {
			return e.client.BatchCallContext(ctx, chunk)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// EstimateGas runs eth_estimateGas.
func (e *Endpoint) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := e.do(ctx, "eth_estimateGas", func(ctx context.Context) (err error) {
		gas, err = e.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// CallContract runs eth_call at block (nil for latest).
func (e *Endpoint) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var out []byte
	err := e.do(ctx, "eth_call", func(ctx context.Context) (err error) {
		out, err = e.eth.CallContract(ctx, msg, block)
		return err
	})
	return out, err
}

// ChainID asks the node for its chain id.
func (e *Endpoint) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := e.do(ctx, "eth_chainId", func(ctx context.Context) (err error) {
		id, err = e.eth.ChainID(ctx)
		return err
	})
	return id, err
}

// BlockNumber returns the latest block number.
func (e *Endpoint) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.do(ctx, "eth_blockNumber", func(ctx context.Context) (err error) {
		n, err = e.eth.BlockNumber(ctx)
		return err
	})
	return n, err
}

// TransactionReceipt returns the receipt of a mined transaction or ethereum.NotFound.
func (e *Endpoint) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var r *types.Receipt
	err := e.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context) (err error) {
		r, err = e.eth.TransactionReceipt(ctx, hash)
		return err
	})
	return r, err
}

// PendingNonceAt returns the next nonce for account.
func (e *Endpoint) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var n uint64
	err := e.do(ctx, "eth_getTransactionCount", func(ctx context.Context) (err error) {
		n, err = e.eth.PendingNonceAt(ctx, account)
		return err
	})
	return n, err
}

// SuggestGasPrice returns the node's gas price suggestion.
func (e *Endpoint) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var p *big.Int
	err := e.do(ctx, "eth_gasPrice", func(ctx context.Context) (err error) {
		p, err = e.eth.SuggestGasPrice(ctx)
		return err
	})
	return p, err
}

// SendTransaction broadcasts an already signed transaction.
func (e *Endpoint) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return e.do(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		return e.eth.SendTransaction(ctx, tx)
	})
}

func (e *Endpoint) do(ctx context.Context, method string, fn func(context.Context) error) error {
	if e.limiter != nil {
		if err := e.limiter.Consume(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	err := fn(ctx)
	took := time.Since(start)

	e.metrics.observeRequest(e.chainID, e.url, method, took, err)
	if err != nil {
		e.log.Debug("rpc request failed", zap.String("method", method), zap.Duration("took", took), zap.Error(err))
		return err
	}
	e.log.Debug("rpc request", zap.String("method", method), zap.Duration("took", took))
	return nil
}
