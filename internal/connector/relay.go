package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/relay"
	"github.com/Mohsinsiddi/w3link/internal/storage"
	"go.uber.org/zap"
)

// Methods and events proposed when pairing.
var (
	relayMethods = []string{
		"eth_sendTransaction",
		"personal_sign",
		"eth_signTypedData_v4",
		MethodSwitchChain,
		MethodAddChain,
	}
	relayEvents = []string{eip1193.EventChainChanged, eip1193.EventAccountsChanged}
)

// relaySessionKey holds the last approved session so later runs can reuse it.
const relaySessionKey = "w3link.relay.session"

type relayRecord struct {
	Session   *relay.Session `json:"session"`
	Requested []uint64       `json:"requested"`
}

// RelayOptions configures the relay connector.
type RelayOptions struct {
	URL       string
	ProjectID string
	// Chains lists the chains to request. The first is required, the rest
	// optional.
	Chains   []uint64
	Metadata relay.Metadata
	// OnPairing is called once the proposal is sent, before waiting for the
	// remote wallet. It receives the pairing client id.
	OnPairing func(clientID string)
	// Store keeps the session between runs. Optional.
	Store  storage.KV
	Logger *zap.Logger
}

// Relay reaches a remote wallet through a pairing relay.
type Relay struct {
	opts RelayOptions
	neg  *Negotiator
	log  *zap.Logger

	mu        sync.Mutex
	client    *relay.Client
	session   *relay.Session
	requested []uint64
	provider  *relayProvider
}

// NewRelay returns the relay connector.
func NewRelay(opts RelayOptions, neg *Negotiator) (*Relay, error) {
	if len(opts.Chains) == 0 {
		return nil, errors.New("relay connector needs at least one chain")
	}
	if opts.URL == "" {
		return nil, errors.New("relay url is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{opts: opts, neg: neg, log: log.Named("connector.relay")}, nil
}

func (r *Relay) ID() string   { return IDRelay }
func (r *Relay) Name() string { return "Wallet Connect" }

// Provider pairs with the remote wallet, or reuses the current session when
// it still covers the configured chains.
func (r *Relay) Provider(ctx context.Context) (eip1193.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		client, err := relay.Dial(ctx, r.opts.URL, relay.WithProjectID(r.opts.ProjectID), relay.WithLogger(r.log))
		if err != nil {
			return nil, err
		}
		r.client = client
	}
	if r.session == nil {
		r.restore()
	}

	if r.session != nil {
		if !r.chainsStale() {
			return r.provider, nil
		}
		r.log.Info("relay session does not cover configured chains, pairing again",
			zap.Uint64s("chains", r.opts.Chains), zap.Uint64s("requested", r.requested))
		r.teardown(ctx)
	}

	if r.opts.OnPairing != nil {
		r.opts.OnPairing(r.client.ClientID())
	}
	session, err := r.client.Pair(ctx, r.pairParams())
	if err != nil {
		if eip1193.MessageContains(err, "user rejected") {
			return nil, fmt.Errorf("%w: connection rejected by the user: %w", eip1193.ErrUserRejected, err)
		}
		return nil, fmt.Errorf("pairing: %w", err)
	}

	r.session = session
	r.requested = slices.Clone(r.opts.Chains)
	r.provider = newRelayProvider(r.client, session, r.initialChain(session))
	r.persist()
	r.log.Info("relay session approved", zap.String("topic", session.Topic),
		zap.Uint64s("chains", session.EIP155().ChainIDs()))
	return r.provider, nil
}

// SetChain adds the chain first when the session has not approved it, then
// switches.
func (r *Relay) SetChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	if _, err := r.neg.chains.Get(id); err != nil {
		return err
	}
	if !r.approved(id) {
		if err := r.neg.addChain(ctx, p, id); err != nil {
			return classify(err)
		}
		r.markRequested(id)
	}
	return classify(r.neg.switchChain(ctx, p, id))
}

// AddChain implements Connector.
func (r *Relay) AddChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	if err := r.neg.addChain(ctx, p, id); err != nil {
		return classify(err)
	}
	r.markRequested(id)
	return classify(r.neg.switchChain(ctx, p, id))
}

// Disconnect ends the remote session. A session the relay no longer knows
// is already gone.
func (r *Relay) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	err := r.client.Disconnect(ctx, r.session.Topic)
	r.dropSession()
	if err != nil && !eip1193.MessageContains(err, "no matching key") {
		return fmt.Errorf("disconnecting relay session: %w", err)
	}
	return nil
}

// Close closes the relay connection. A stored session stays available to
// later runs.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// chainsStale reports whether the session must be re-established to cover
// the configured chains. Sessions able to add chains are never stale.
func (r *Relay) chainsStale() bool {
	ns := r.session.EIP155()
	if ns.HasMethod(MethodAddChain) {
		return false
	}
	approved := ns.ChainIDs()
	if len(approved) > 0 && !slices.ContainsFunc(approved, func(id uint64) bool {
		return slices.Contains(r.opts.Chains, id)
	}) {
		return false
	}
	for _, id := range r.opts.Chains {
		if !slices.Contains(r.requested, id) {
			return true
		}
	}
	return false
}

func (r *Relay) approved(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.provider != nil && r.provider.approvedChain(id) {
		return true
	}
	return slices.Contains(r.session.EIP155().ChainIDs(), id)
}

func (r *Relay) markRequested(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.requested, id) {
		r.requested = append(r.requested, id)
	}
	if r.provider != nil {
		r.provider.approve(id)
	}
	r.persist()
}

// teardown must be called with r.mu held.
func (r *Relay) teardown(ctx context.Context) {
	if err := r.client.Disconnect(ctx, r.session.Topic); err != nil && !eip1193.MessageContains(err, "no matching key") {
		r.log.Warn("tearing down stale relay session", zap.Error(err))
	}
	r.dropSession()
}

func (r *Relay) release() {
	if r.provider != nil {
		r.provider.close()
	}
	r.session, r.provider, r.requested = nil, nil, nil
}

func (r *Relay) dropSession() {
	r.release()
	if r.opts.Store != nil {
		if err := r.opts.Store.Delete(relaySessionKey); err != nil {
			r.log.Warn("deleting stored relay session", zap.Error(err))
		}
	}
}

// restore loads a stored session. It must be called with r.mu held and a
// client dialled.
func (r *Relay) restore() {
	if r.opts.Store == nil {
		return
	}
	raw, ok, err := r.opts.Store.Get(relaySessionKey)
	if err != nil || !ok {
		return
	}
	var rec relayRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Session == nil || rec.Session.Topic == "" {
		r.log.Warn("ignoring malformed stored relay session", zap.Error(err))
		return
	}
	r.session = rec.Session
	r.requested = rec.Requested
	r.provider = newRelayProvider(r.client, rec.Session, r.initialChain(rec.Session))
	r.log.Debug("restored relay session", zap.String("topic", rec.Session.Topic))
}

// persist must be called with r.mu held.
func (r *Relay) persist() {
	if r.opts.Store == nil || r.session == nil {
		return
	}
	raw, err := json.Marshal(relayRecord{Session: r.session, Requested: r.requested})
	if err == nil {
		err = r.opts.Store.Set(relaySessionKey, raw)
	}
	if err != nil {
		r.log.Warn("storing relay session", zap.Error(err))
	}
}

func (r *Relay) pairParams() relay.PairParams {
	caip := func(ids []uint64) []string {
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = chain.CAIP2(id)
		}
		return out
	}
	p := relay.PairParams{
		ProjectID: r.opts.ProjectID,
		RequiredNamespaces: map[string]relay.Namespace{relay.EIP155: {
			Chains:  caip(r.opts.Chains[:1]),
			Methods: relayMethods,
			Events:  relayEvents,
		}},
		Metadata: r.opts.Metadata,
	}
	if len(r.opts.Chains) > 1 {
		p.OptionalNamespaces = map[string]relay.Namespace{relay.EIP155: {
			Chains:  caip(r.opts.Chains[1:]),
			Methods: relayMethods,
			Events:  relayEvents,
		}}
	}
	return p
}

func (r *Relay) initialChain(s *relay.Session) uint64 {
	approved := s.EIP155().ChainIDs()
	for _, id := range r.opts.Chains {
		if slices.Contains(approved, id) {
			return id
		}
	}
	if len(approved) > 0 {
		return approved[0]
	}
	return r.opts.Chains[0]
}

// relayProvider is the EIP-1193 view of one relay session. Account and chain
// queries are answered from the session; everything else is forwarded.
type relayProvider struct {
	client *relay.Client
	topic  string
	events *emitter
	unsub  func()

	mu       sync.Mutex
	chainID  uint64
	accounts []string
	approved []uint64
}

func newRelayProvider(client *relay.Client, s *relay.Session, chainID uint64) *relayProvider {
	ns := s.EIP155()
	p := &relayProvider{
		client:   client,
		topic:    s.Topic,
		events:   newEmitter(),
		chainID:  chainID,
		accounts: ns.Addresses(),
		approved: ns.ChainIDs(),
	}
	p.unsub = client.OnEvent(p.onEvent)
	return p
}

func (p *relayProvider) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p.mu.Lock()
	chainID := p.chainID
	accounts := slices.Clone(p.accounts)
	p.mu.Unlock()

	switch method {
	case "eth_requestAccounts", "eth_accounts":
		if accounts == nil {
			accounts = []string{}
		}
		return json.Marshal(accounts)
	case "eth_chainId":
		return json.Marshal(chain.HexID(chainID))
	}

	raw, err := p.client.Request(ctx, p.topic, chain.CAIP2(chainID), method, params)
	if err != nil {
		return nil, err
	}
	if method == MethodSwitchChain {
		if id, ok := switchTarget(params); ok {
			p.setChain(id)
		}
	}
	return raw, nil
}

func (p *relayProvider) On(event string, fn eip1193.Listener) func() {
	return p.events.on(event, fn)
}

func (p *relayProvider) approvedChain(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.approved, id)
}

func (p *relayProvider) approve(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.approved, id) {
		p.approved = append(p.approved, id)
	}
}

func (p *relayProvider) setChain(id uint64) {
	p.mu.Lock()
	changed := p.chainID != id
	p.chainID = id
	p.mu.Unlock()
	if changed {
		p.events.emit(eip1193.EventChainChanged, chain.HexID(id))
	}
}

func (p *relayProvider) onEvent(ev relay.Event) {
	if ev.Topic != p.topic {
		return
	}
	switch ev.Name {
	case eip1193.EventChainChanged:
		id, err := chain.DecodeID(decodeScalar(ev.Data))
		if err != nil {
			return
		}
		p.setChain(id)
	case eip1193.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(ev.Data, &accounts); err != nil {
			return
		}
		p.mu.Lock()
		p.accounts = accounts
		p.mu.Unlock()
		p.events.emit(ev.Name, accounts)
	case relay.EventSessionDelete:
		p.events.emit(eip1193.EventDisconnect, nil)
	default:
		p.events.emitRaw(ev.Name, ev.Data)
	}
}

func (p *relayProvider) close() {
	if p.unsub != nil {
		p.unsub()
	}
}

// switchTarget extracts the chain id from wallet_switchEthereumChain params.
func switchTarget(params any) (uint64, bool) {
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, false
	}
	var list []switchChainParams
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return 0, false
	}
	id, err := chain.DecodeID(list[0].ChainID)
	return id, err == nil
}

// decodeScalar turns a JSON string or number into a Go value for DecodeID.
func decodeScalar(raw json.RawMessage) any {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
