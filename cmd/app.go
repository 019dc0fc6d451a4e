package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/connector"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/keys"
	"github.com/Mohsinsiddi/w3link/internal/network"
	"github.com/Mohsinsiddi/w3link/internal/relay"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/Mohsinsiddi/w3link/internal/storage"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"go.uber.org/zap"
)

var ring *storage.Keyring

// openKeyring opens the OS keychain once per run.
func openKeyring() (*storage.Keyring, error) {
	if ring != nil {
		return ring, nil
	}
	r, err := storage.OpenKeyring(config.KeyringService, cfg.Dir())
	if err != nil {
		return nil, err
	}
	ring = r
	return ring, nil
}

func openKeystore() (*keys.Keystore, error) {
	kv, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return keys.NewKeystore(kv), nil
}

// registry returns the configured chains with custom RPCs applied.
func registry() (*chain.Registry, error) {
	return cfg.Registry(chain.NewRegistry())
}

// selectedChain resolves --chain, falling back to the default chain.
func selectedChain(reg *chain.Registry) (chain.Chain, error) {
	if chainFlag == "" {
		return reg.Get(cfg.DefaultChain)
	}
	return reg.Lookup(chainFlag)
}

// openNetwork builds one pool per configured chain.
func openNetwork(ctx context.Context) (*network.Network, error) {
	reg, err := registry()
	if err != nil {
		return nil, err
	}
	opts := network.Options{
		MaxBatchSize:  cfg.MaxBatchSize,
		GasMultiplier: cfg.GasMultiplier,
		Confirmations: cfg.Confirmations,
		Metrics:       metrics,
		Logger:        logger,
	}
	if cfg.Limiter.Enabled() {
		mode, err := rpc.ParseLimiterMode(cfg.Limiter.Mode)
		if err != nil {
			return nil, err
		}
		opts.Limits = &network.Limits{
			RequestsPerInterval: cfg.Limiter.RequestsPerInterval,
			Interval:            cfg.Limiter.Interval(),
			Mode:                mode,
		}
	}
	return network.New(ctx, reg, opts)
}

// openPool returns the pool of the selected chain. The caller closes the
// network.
func openPool(ctx context.Context) (*network.Network, *rpc.Pool, chain.Chain, error) {
	net, err := openNetwork(ctx)
	if err != nil {
		return nil, nil, chain.Chain{}, err
	}
	c, err := selectedChain(net.Chains())
	if err != nil {
		net.Close()
		return nil, nil, chain.Chain{}, err
	}
	pool, err := net.Pool(c.ID)
	if err != nil {
		net.Close()
		return nil, nil, chain.Chain{}, err
	}
	return net, pool, c, nil
}

func sessionKV() (storage.KV, error) {
	if cfg.SessionBackend == "keyring" {
		return openKeyring()
	}
	return storage.NewFile(cfg.StatePath()), nil
}

// walletApp is everything a wallet command needs. Close releases it.
type walletApp struct {
	net        *network.Network
	ctrl       *wallet.Controller
	connectors *connector.Set
	relay      *connector.Relay
	bridge     *bridgeEnv
}

// openWallet wires the connectors, the controller and the network, then
// resumes the persisted session.
func openWallet(ctx context.Context) (*walletApp, error) {
	net, err := openNetwork(ctx)
	if err != nil {
		return nil, err
	}
	app := &walletApp{net: net}
	if err := app.wire(); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.resume(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *walletApp) wire() error {
	reg := a.net.Chains()
	start, err := selectedChain(reg)
	if err != nil {
		return err
	}
	kv, err := sessionKV()
	if err != nil {
		return err
	}
	store := wallet.NewStore(kv)

	// The local wallet resumes on the chain it was left on.
	localChain := start.ID
	if persisted, err := store.Load(); err == nil && persisted != nil && reg.Has(persisted.ChainID()) {
		localChain = persisted.ChainID()
	}

	neg := connector.NewNegotiator(reg, logger)
	a.bridge = newBridgeEnv(cfg.Bridge.URL, cfg.Bridge.Flags, logger)
	conns := connector.Browsers(a.bridge, neg)

	relayChains := []uint64{start.ID}
	for _, id := range reg.IDs() {
		if id != start.ID {
			relayChains = append(relayChains, id)
		}
	}
	a.relay, err = connector.NewRelay(connector.RelayOptions{
		URL:       cfg.Relay.URL,
		ProjectID: cfg.Relay.ProjectID,
		Chains:    relayChains,
		Metadata:  relay.Metadata{Name: cfg.Relay.Name, URL: cfg.Relay.URLMeta},
		OnPairing: func(clientID string) {
			fmt.Println(ui.Hint("Approve the pairing request in your wallet (client " + ui.Meta(clientID) + ")"))
		},
		Store:  kv,
		Logger: logger,
	}, neg)
	if err != nil {
		return err
	}
	conns = append(conns, a.relay)

	local := connector.LocalOptions{
		KeyName:  keyName(),
		ChainID:  localChain,
		Backends: connector.PoolBackends(a.net.Pool),
		Logger:   logger,
	}
	// Opening the keychain may prompt, so it only happens for a named key.
	if local.KeyName != "" {
		if local.Keys, err = openKeystore(); err != nil {
			return err
		}
	}
	conns = append(conns, connector.NewLocal(local, neg))
	a.connectors = connector.NewSet(conns...)

	a.ctrl, err = wallet.NewController(wallet.Options{
		Connectors: a.connectors,
		Store:      store,
		Chains:     reg,
		OnUpdate: func(s *wallet.Session) {
			logger.Debug("session updated", zap.Stringer("session", s))
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	a.net.Attach(a.ctrl)
	return nil
}

// resume reconnects the stored session. A wallet that cannot be reached
// leaves the session disconnected rather than failing the command.
func (a *walletApp) resume(ctx context.Context) error {
	err := a.ctrl.Reconnect(ctx, wallet.Handlers{
		OnProviderUnavailable: func(err error) {
			logger.Debug("stored wallet unavailable", zap.Error(err))
		},
	})
	if errors.Is(err, eip1193.ErrUserRejected) {
		return nil
	}
	return err
}

// Close releases the controller, the connectors and the pools.
func (a *walletApp) Close() {
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			logger.Debug("closing relay", zap.Error(err))
		}
	}
	if a.bridge != nil {
		a.bridge.Close()
	}
	a.net.Close()
}

// walletHandlers prints a hint for classified wallet failures and keeps the
// error so the command still exits non-zero.
func walletHandlers(failed *error) wallet.Handlers {
	keep := func(hint string) func(error) {
		return func(err error) {
			fmt.Println(ui.Hint(hint))
			*failed = err
		}
	}
	return wallet.Handlers{
		OnProviderUnavailable:   keep("No wallet found. Start the wallet bridge or pick another connector."),
		OnReject:                keep("The request was rejected in the wallet."),
		OnRequestAlreadyPending: keep("A request is already waiting in the wallet. Resolve it first."),
	}
}

// withHandlers runs op with walletHandlers and returns the first failure.
func withHandlers(op func(h wallet.Handlers) error) error {
	var failed error
	if err := op(walletHandlers(&failed)); err != nil {
		return err
	}
	return failed
}
