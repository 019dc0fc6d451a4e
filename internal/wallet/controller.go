package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/connector"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// eventTimeout bounds provider calls made while handling a pushed event.
const eventTimeout = 30 * time.Second

// Handlers receive classified failures. When a handler is set, the failure
// is passed to it and the operation returns nil.
type Handlers struct {
	OnProviderUnavailable   func(err error)
	OnReject                func(err error)
	OnRequestAlreadyPending func(err error)
}

// UpdateFunc receives every committed session; nil means disconnected. It
// runs inside the commit and must not call the controller's mutating
// methods.
type UpdateFunc func(s *Session)

// Options configures a Controller.
type Options struct {
	Connectors *connector.Set
	Store      *Store
	// Chains lists the chains the application supports. A wallet on any
	// other chain gets a zero chain id.
	Chains   *chain.Registry
	OnUpdate UpdateFunc
	Logger   *zap.Logger
}

// Controller drives the wallet connection. Every transition goes through
// one commit step that publishes the new session and persists it.
type Controller struct {
	connectors *connector.Set
	store      *Store
	chains     *chain.Registry
	onUpdate   UpdateFunc
	log        *zap.Logger

	commitMu sync.Mutex
	session  atomic.Pointer[Session]

	mu          sync.Mutex
	active      connector.Connector
	provider    eip1193.Provider
	subscribed  eip1193.Provider
	unsubscribe []func()
}

// NewController returns a disconnected controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Connectors == nil {
		return nil, errors.New("connectors are required")
	}
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Chains == nil {
		opts.Chains = chain.NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		connectors: opts.Connectors,
		store:      opts.Store,
		chains:     opts.Chains,
		onUpdate:   opts.OnUpdate,
		log:        log.Named("wallet"),
	}, nil
}

// Connect attaches to the wallet reached by connectorID and commits a live
// session.
func (c *Controller) Connect(ctx context.Context, connectorID string, h Handlers) error {
	conn, err := c.connectors.Get(connectorID)
	if err != nil {
		return err
	}
	p, err := conn.Provider(ctx)
	if errors.Is(err, eip1193.ErrProviderUnavailable) && h.OnProviderUnavailable != nil {
		h.OnProviderUnavailable(err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("connecting %s: %w", connectorID, err)
	}

	var (
		chainID uint64
		address string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := c.walletChainID(gctx, p)
		chainID = id
		return err
	})
	g.Go(func() error {
		addr, err := c.walletAddress(gctx, p)
		address = addr
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = conn
	c.provider = p
	c.subscribe(p)
	c.mu.Unlock()

	c.log.Info("wallet connected", zap.String("connector", connectorID),
		zap.Uint64("chain", chainID), zap.String("address", address))
	return c.commit(NewSession(connectorID, chainID, address, true))
}

// Reconnect resumes a persisted session. It publishes the stored session
// as disconnected first, then connects with its connector when it has one.
// It does nothing while a session is live.
func (c *Controller) Reconnect(ctx context.Context, h Handlers) error {
	if c.session.Load() != nil {
		return nil
	}
	persisted, err := c.store.Load()
	if err != nil {
		c.log.Warn("ignoring stored session", zap.Error(err))
		return nil
	}
	if persisted == nil {
		return nil
	}
	if err := c.commit(persisted.Disconnected()); err != nil {
		return err
	}
	if persisted.ConnectorID() == "" {
		return nil
	}
	return c.Connect(ctx, persisted.ConnectorID(), h)
}

// Disconnect clears the session. Connectors holding a remote session tear
// it down as well.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.active, c.provider = nil, nil
	c.dropSubscriptions()
	c.mu.Unlock()

	if err := c.commit(nil); err != nil {
		return err
	}
	if d, ok := active.(connector.Disconnector); ok {
		if err := d.Disconnect(ctx); err != nil {
			return err
		}
	}
	c.log.Info("wallet disconnected")
	return nil
}

// SetChain asks the wallet to move to chainID, adding the chain when the
// wallet does not know it.
func (c *Controller) SetChain(ctx context.Context, chainID uint64, h Handlers) error {
	s := c.session.Load()
	if s == nil || s.Address() == "" || !s.Connected() {
		return ErrSignerUnavailable
	}
	if s.ChainID() == chainID {
		return fmt.Errorf("%w: already on chain %d", ErrInvalidRequest, chainID)
	}
	if _, err := c.chains.Get(chainID); err != nil {
		return err
	}
	active, p := c.current()
	if p == nil {
		return ErrWalletNotConnected
	}

	err := active.SetChain(ctx, p, chainID)
	if err == nil {
		c.afterSwitch(ctx, p, chainID)
	}
	return c.classify(err, h)
}

// AddChain asks the wallet to add chainID and switch to it.
func (c *Controller) AddChain(ctx context.Context, chainID uint64, h Handlers) error {
	if _, err := c.chains.Get(chainID); err != nil {
		return err
	}
	active, p := c.current()
	if p == nil {
		return ErrWalletNotConnected
	}
	err := active.AddChain(ctx, p, chainID)
	if err == nil {
		c.afterSwitch(ctx, p, chainID)
	}
	return c.classify(err, h)
}

// Signer returns a signer bound to the connected wallet.
func (c *Controller) Signer(ctx context.Context) (*Signer, error) {
	_, p := c.current()
	if p == nil {
		return nil, ErrSignerUnavailable
	}
	accounts, err := eip1193.Call[[]string](ctx, p, "eth_accounts", nil)
	if err != nil {
		if eip1193.MessageContains(err, "unknown account") {
			return nil, fmt.Errorf("%w: %w", ErrSignerUnavailable, err)
		}
		return nil, err
	}
	if len(accounts) == 0 || accounts[0] == "" {
		return nil, ErrSignerUnavailable
	}
	return newSigner(p, accounts[0])
}

// Request sends a raw request to the connected wallet.
func (c *Controller) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	_, p := c.current()
	if p == nil {
		return nil, ErrWalletNotConnected
	}
	raw, err := p.Request(ctx, method, params)
	if eip1193.IsUnsupportedMethod(err) {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedRequest, method, err)
	}
	return raw, err
}

// Session returns the live session, or the persisted one when nothing is
// live. It returns nil when neither exists.
func (c *Controller) Session() *Session {
	if s := c.session.Load(); s != nil {
		return s
	}
	s, err := c.store.Load()
	if err != nil {
		c.log.Debug("stored session unreadable", zap.Error(err))
		return nil
	}
	return s
}

// Close drops provider subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropSubscriptions()
}

func (c *Controller) current() (connector.Connector, eip1193.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.provider
}

func (c *Controller) classify(err error, h Handlers) error {
	switch {
	case err == nil:
		return nil
	case eip1193.IsUserRejected(err) && h.OnReject != nil:
		h.OnReject(err)
		return nil
	case eip1193.IsRequestPending(err) && h.OnRequestAlreadyPending != nil:
		h.OnRequestAlreadyPending(err)
		return nil
	default:
		return err
	}
}

// afterSwitch records the chain after a successful negotiation. Providers
// that push chainChanged may deliver it after the request returns, so their
// chain is read back; the event then finds the session unchanged.
func (c *Controller) afterSwitch(ctx context.Context, p eip1193.Provider, chainID uint64) {
	if _, ok := p.(eip1193.EventSource); ok {
		id, err := c.walletChainID(ctx, p)
		if err != nil {
			c.log.Debug("reading chain after switch", zap.Error(err))
			return
		}
		chainID = id
	}
	c.transition(func(cur *Session) *Session {
		if cur == nil {
			return nil
		}
		return cur.WithChain(chainID)
	})
}

func (c *Controller) walletAddress(ctx context.Context, p eip1193.Provider) (string, error) {
	accounts, err := eip1193.Call[[]string](ctx, p, "eth_requestAccounts", nil)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", ErrSignerUnavailable
	}
	return strings.ToLower(accounts[0]), nil
}

// walletChainID returns the wallet's chain, or zero when the chain is not
// supported.
func (c *Controller) walletChainID(ctx context.Context, p eip1193.Provider) (uint64, error) {
	raw, err := p.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}
	return c.parseChain(raw), nil
}

func (c *Controller) parseChain(raw json.RawMessage) uint64 {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	id, ok := c.chains.ParseID(v)
	if !ok {
		c.log.Debug("wallet on unsupported chain", zap.ByteString("chain", raw))
		return 0
	}
	return id
}

// subscribe registers event handlers on p once. It must be called with
// c.mu held.
func (c *Controller) subscribe(p eip1193.Provider) {
	if c.subscribed == p {
		return
	}
	c.dropSubscriptions()
	src, ok := p.(eip1193.EventSource)
	if !ok {
		return
	}
	c.subscribed = p
	c.unsubscribe = []func(){
		src.On(eip1193.EventAccountsChanged, c.onAccountsChanged),
		src.On(eip1193.EventChainChanged, c.onChainChanged),
		src.On(eip1193.EventDisconnect, c.onDisconnect),
	}
}

func (c *Controller) dropSubscriptions() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
	c.subscribed = nil
}

// onAccountsChanged replaces the session with the new first account. An
// empty list means the wallet locked or revoked access.
func (c *Controller) onAccountsChanged(payload json.RawMessage) {
	var accounts []string
	if err := json.Unmarshal(payload, &accounts); err != nil {
		c.log.Warn("malformed accountsChanged payload", zap.Error(err))
		return
	}
	address := ""
	if len(accounts) > 0 {
		address = strings.ToLower(accounts[0])
	}

	active, p := c.current()
	cur := c.session.Load()
	connectorID := ""
	if cur != nil {
		connectorID = cur.ConnectorID()
	}
	if connectorID == "" && active != nil {
		connectorID = active.ID()
	}

	var chainID uint64
	if address != "" && connectorID != "" {
		if cur != nil && cur.ChainID() != 0 {
			chainID = cur.ChainID()
		} else if p != nil {
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			id, err := c.walletChainID(ctx, p)
			cancel()
			if err != nil {
				c.log.Warn("reading chain after account change", zap.Error(err))
			}
			chainID = id
		}
	}

	c.transition(func(*Session) *Session {
		if address == "" || connectorID == "" {
			return nil
		}
		return NewSession(connectorID, chainID, address, true)
	})
}

func (c *Controller) onChainChanged(payload json.RawMessage) {
	chainID := c.parseChain(payload)
	c.transition(func(cur *Session) *Session {
		if cur == nil {
			return nil
		}
		return cur.WithChain(chainID)
	})
}

func (c *Controller) onDisconnect(json.RawMessage) {
	c.transition(func(*Session) *Session { return nil })
}

// transition computes and commits the next session atomically. Returning
// the current session unchanged skips the commit.
func (c *Controller) transition(next func(cur *Session) *Session) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	cur := c.session.Load()
	s := next(cur)
	if cur.Equal(s) {
		return
	}
	if err := c.apply(s); err != nil {
		c.log.Warn("persisting session", zap.Error(err))
	}
}

func (c *Controller) commit(s *Session) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	return c.apply(s)
}

// apply publishes s to the callback and then persists it. It must be called
// with c.commitMu held.
func (c *Controller) apply(s *Session) error {
	c.session.Store(s)
	if c.onUpdate != nil {
		c.onUpdate(s)
	}
	if err := c.store.Save(s); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}
