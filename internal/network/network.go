// Package network ties the per-chain RPC pools and the connected wallet
// together for reads and transaction sending.
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often receipts are polled while waiting for
// confirmations.
const DefaultPollInterval = 2 * time.Second

// Limits configures rate limiting for every pool. A zero Mode means shared,
// as rpc.ParseLimiterMode("") does.
type Limits struct {
	RequestsPerInterval int
	Interval            time.Duration
	Mode                rpc.LimiterMode
}

// Options configures a Network.
type Options struct {
	// Limits is nil for no rate limiting.
	Limits        *Limits
	MaxBatchSize  int
	GasMultiplier uint64
	Confirmations uint64
	PollInterval  time.Duration
	Metrics       *rpc.Metrics
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Wallet is the part of the connection controller the network needs.
type Wallet interface {
	Session() *wallet.Session
	Signer(ctx context.Context) (*wallet.Signer, error)
}

// Network owns one pool per chain of its registry.
type Network struct {
	chains        *chain.Registry
	pools         map[uint64]*rpc.Pool
	gasMultiplier uint64
	confirmations uint64
	poll          time.Duration
	wallet        Wallet
	log           *zap.Logger
}

// New dials a pool for every chain in reg.
func New(ctx context.Context, reg *chain.Registry, opts Options) (*Network, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.GasMultiplier == 0 {
		opts.GasMultiplier = tx.DefaultGasMultiplier
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	poolOpts := []rpc.PoolOption{
		rpc.WithMaxBatchSize(opts.MaxBatchSize),
		rpc.WithMetrics(opts.Metrics),
		rpc.WithLogger(log),
	}
	if opts.HTTPClient != nil {
		poolOpts = append(poolOpts, rpc.WithPoolHTTPClient(opts.HTTPClient))
	}
	limiterOpt, err := limiterOption(opts.Limits, opts.Metrics)
	if err != nil {
		return nil, err
	}
	if limiterOpt != nil {
		poolOpts = append(poolOpts, limiterOpt)
	}

	n := &Network{
		chains:        reg,
		pools:         make(map[uint64]*rpc.Pool),
		gasMultiplier: opts.GasMultiplier,
		confirmations: opts.Confirmations,
		poll:          opts.PollInterval,
		log:           log.Named("network"),
	}
	for _, c := range reg.All() {
		pool, err := rpc.NewPool(ctx, c.ID, c.RPCURLs, poolOpts...)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("chain %s: %w", c.Name, err)
		}
		n.pools[c.ID] = pool
	}
	return n, nil
}

func limiterOption(l *Limits, m *rpc.Metrics) (rpc.PoolOption, error) {
	if l == nil {
		return nil, nil
	}
	switch l.Mode {
	case rpc.LimiterShared, "":
		shared, err := rpc.NewLimiter(l.RequestsPerInterval, l.Interval)
		if err != nil {
			return nil, err
		}
		return rpc.WithSharedLimiter(shared.Instrument(m)), nil
	case rpc.LimiterPrivate:
		if _, err := rpc.NewLimiter(l.RequestsPerInterval, l.Interval); err != nil {
			return nil, err
		}
		return rpc.WithPrivateLimits(l.RequestsPerInterval, l.Interval), nil
	case rpc.LimiterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown limiter mode %q", l.Mode)
	}
}

// Chains returns the registry the network was built from.
func (n *Network) Chains() *chain.Registry { return n.chains }

// Pool returns the pool for id.
func (n *Network) Pool(id uint64) (*rpc.Pool, error) {
	p, ok := n.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", chain.ErrUnsupportedChain, id)
	}
	return p, nil
}

// Attach sets the wallet used for transactions.
func (n *Network) Attach(w Wallet) { n.wallet = w }

// Close closes every pool.
func (n *Network) Close() {
	for _, p := range n.pools {
		p.Close()
	}
}

// InitializeTransaction prepares draft with the wallet as sender and the
// session chain's pool as gas estimator.
func (n *Network) InitializeTransaction(ctx context.Context, draft tx.Request) (*tx.Prepared, error) {
	return n.initialize(ctx, draft, n.gasMultiplier)
}

func (n *Network) initialize(ctx context.Context, draft tx.Request, multiplier uint64) (*tx.Prepared, error) {
	if n.wallet == nil {
		return nil, wallet.ErrWalletNotConnected
	}
	signer, err := n.wallet.Signer(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := n.sessionPool()
	if err != nil {
		return nil, err
	}
	return tx.Initialize(ctx, draft, signer, multiplier, tx.CallMsgEstimator{Backend: pool})
}

// SendOptions controls SendTransaction. Zero values fall back to the
// network defaults.
type SendOptions struct {
	OnSend        func(hash common.Hash)
	OnConfirm     func(receipt *types.Receipt)
	GasMultiplier uint64
	// Confirmations is a pointer so that zero can skip waiting.
	Confirmations *uint64
}

// SendTransaction prepares draft, sends it through the wallet and waits for
// the configured number of confirmations. With zero confirmations it returns
// a nil receipt right after broadcasting.
func (n *Network) SendTransaction(ctx context.Context, draft tx.Request, opts SendOptions) (*types.Receipt, error) {
	pool, err := n.sessionPool()
	if err != nil {
		return nil, err
	}
	multiplier := opts.GasMultiplier
	if multiplier == 0 {
		multiplier = n.gasMultiplier
	}
	confirmations := n.confirmations
	if opts.Confirmations != nil {
		confirmations = *opts.Confirmations
	}

	prepared, err := n.initialize(ctx, draft, multiplier)
	if err != nil {
		return nil, err
	}
	hash, err := prepared.Send(ctx)
	if err != nil {
		return nil, err
	}
	n.log.Info("transaction sent", zap.Uint64("chain", pool.ChainID()), zap.Stringer("hash", hash))
	if opts.OnSend != nil {
		opts.OnSend(hash)
	}
	if confirmations == 0 {
		return nil, nil
	}

	receipt, err := WaitForReceipt(ctx, pool, hash, confirmations, n.poll)
	if err != nil {
		return nil, err
	}
	if opts.OnConfirm != nil {
		opts.OnConfirm(receipt)
	}
	return receipt, nil
}

func (n *Network) sessionPool() (*rpc.Pool, error) {
	if n.wallet == nil {
		return nil, wallet.ErrWalletNotConnected
	}
	s := n.wallet.Session()
	if s == nil || s.ChainID() == 0 {
		return nil, fmt.Errorf("%w: wallet is not on a supported chain", chain.ErrUnsupportedChain)
	}
	return n.Pool(s.ChainID())
}

// ReceiptSource is what WaitForReceipt polls.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// WaitForReceipt polls src until hash is mined and confirmations blocks,
// counting the inclusion block, exist on top of it.
func WaitForReceipt(ctx context.Context, src ReceiptSource, hash common.Hash, confirmations uint64, every time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		receipt, err := src.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
		case err != nil:
			return nil, fmt.Errorf("fetching receipt: %w", err)
		case receipt.BlockNumber == nil:
		default:
			head, err := src.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("fetching head: %w", err)
			}
			mined := receipt.BlockNumber.Uint64()
			if head >= mined && head-mined+1 >= confirmations {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
