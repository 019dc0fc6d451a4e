package wallet_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/connector"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/storage"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

const lowered = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

type recorder struct {
	mu      sync.Mutex
	updates []*wallet.Session
}

func (r *recorder) update(s *wallet.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, s)
}

func (r *recorder) all() []*wallet.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*wallet.Session(nil), r.updates...)
}

type harness struct {
	ctrl  *wallet.Controller
	store *wallet.Store
	kv    *storage.Memory
	rec   *recorder
}

// walletFake answers like an injected wallet on BNB Smart Chain.
func walletFake() *eip1193.Fake {
	return eip1193.NewFake().
		Reply("eth_chainId", "0x38").
		Reply("eth_requestAccounts", []string{account}).
		Reply("eth_accounts", []string{account})
}

func newHarness(t *testing.T, p eip1193.Provider) *harness {
	t.Helper()
	reg := chain.NewRegistry()
	neg := connector.NewNegotiator(reg, nil)
	env := connector.StaticEnvironment{}
	if p != nil {
		env["ethereum"] = &connector.Injected{Provider: p}
	}
	kv := storage.NewMemory()
	rec := &recorder{}
	store := wallet.NewStore(kv)
	ctrl, err := wallet.NewController(wallet.Options{
		Connectors: connector.NewSet(connector.Browsers(env, neg)...),
		Store:      store,
		Chains:     reg,
		OnUpdate:   rec.update,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return &harness{ctrl: ctrl, store: store, kv: kv, rec: rec}
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Connect(context.Background(), connector.IDBrowser, wallet.Handlers{}))
}

func (h *harness) persisted(t *testing.T) *wallet.Session {
	t.Helper()
	s, err := h.store.Load()
	require.NoError(t, err)
	return s
}

func TestConnectCommitsAndPersists(t *testing.T) {
	h := newHarness(t, walletFake())
	h.connect(t)

	want := wallet.NewSession(connector.IDBrowser, 56, lowered, true)
	assert.True(t, want.Equal(h.ctrl.Session()), "got %s", h.ctrl.Session())
	assert.True(t, want.Equal(h.persisted(t)))

	updates := h.rec.all()
	require.Len(t, updates, 1)
	assert.True(t, want.Equal(updates[0]))
}

func TestConnectUnsupportedChain(t *testing.T) {
	h := newHarness(t, walletFake().Reply("eth_chainId", "0x2a"))
	h.connect(t)
	assert.Zero(t, h.ctrl.Session().ChainID())
	assert.True(t, h.ctrl.Session().Connected())
}

func TestConnectWithoutAccounts(t *testing.T) {
	h := newHarness(t, walletFake().Reply("eth_requestAccounts", []string{}))
	err := h.ctrl.Connect(context.Background(), connector.IDBrowser, wallet.Handlers{})
	assert.ErrorIs(t, err, wallet.ErrSignerUnavailable)
	assert.Nil(t, h.ctrl.Session())
}

func TestConnectFailureLeavesNoProvider(t *testing.T) {
	p := walletFake().Fail("eth_requestAccounts", eip1193.NewError(eip1193.CodeUserRejectedRequest, "User rejected the request."))
	h := newHarness(t, p)
	ctx := context.Background()

	err := h.ctrl.Connect(ctx, connector.IDBrowser, wallet.Handlers{})
	require.Error(t, err)
	assert.Nil(t, h.ctrl.Session())

	_, err = h.ctrl.Request(ctx, "eth_blockNumber", nil)
	assert.ErrorIs(t, err, wallet.ErrWalletNotConnected)
	_, err = h.ctrl.Signer(ctx)
	assert.ErrorIs(t, err, wallet.ErrSignerUnavailable)
	assert.Zero(t, p.ListenerCount(eip1193.EventAccountsChanged))
	assert.Zero(t, p.ListenerCount(eip1193.EventChainChanged))
	assert.Zero(t, p.ListenerCount(eip1193.EventDisconnect))
}

func TestConnectProviderUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	err := h.ctrl.Connect(context.Background(), connector.IDMetaMask, wallet.Handlers{})
	assert.ErrorIs(t, err, eip1193.ErrProviderUnavailable)

	var handled error
	err = h.ctrl.Connect(context.Background(), connector.IDMetaMask, wallet.Handlers{
		OnProviderUnavailable: func(err error) { handled = err },
	})
	require.NoError(t, err)
	assert.ErrorIs(t, handled, eip1193.ErrProviderUnavailable)

	err = h.ctrl.Connect(context.Background(), "nope", wallet.Handlers{})
	assert.Error(t, err)
}

func TestConnectSubscribesOnce(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	h.connect(t)
	h.connect(t)
	assert.Equal(t, 1, p.ListenerCount(eip1193.EventAccountsChanged))
	assert.Equal(t, 1, p.ListenerCount(eip1193.EventChainChanged))
	assert.Equal(t, 1, p.ListenerCount(eip1193.EventDisconnect))
}

func TestDisconnectClearsSession(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	h.connect(t)

	require.NoError(t, h.ctrl.Disconnect(context.Background()))
	assert.Nil(t, h.ctrl.Session())
	assert.Nil(t, h.persisted(t))
	_, ok, err := h.kv.Get(wallet.StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, p.ListenerCount(eip1193.EventChainChanged))

	_, err = h.ctrl.Request(context.Background(), "eth_blockNumber", nil)
	assert.ErrorIs(t, err, wallet.ErrWalletNotConnected)
}

func TestSetChainSameChain(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	h.connect(t)
	before := len(p.Calls())

	err := h.ctrl.SetChain(context.Background(), 56, wallet.Handlers{})
	assert.ErrorIs(t, err, wallet.ErrInvalidRequest)
	assert.Len(t, p.Calls(), before, "no provider calls")
}

func TestSetChainRequiresSession(t *testing.T) {
	h := newHarness(t, walletFake())
	err := h.ctrl.SetChain(context.Background(), 1, wallet.Handlers{})
	assert.ErrorIs(t, err, wallet.ErrSignerUnavailable)
}

func TestSetChainUnknownChain(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	h.connect(t)
	err := h.ctrl.SetChain(context.Background(), 424242, wallet.Handlers{})
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
	assert.Zero(t, p.CallCount(connector.MethodSwitchChain))
}

func TestSetChainAddsMissingChain(t *testing.T) {
	p := walletFake().
		Sequence(connector.MethodSwitchChain,
			func(json.RawMessage) (any, error) {
				return nil, eip1193.NewError(eip1193.CodeMissingRequestedChain, "Unrecognized chain ID")
			},
			func(json.RawMessage) (any, error) { return nil, nil },
		).
		Reply(connector.MethodAddChain, nil)
	h := newHarness(t, p)
	h.connect(t)

	require.NoError(t, h.ctrl.SetChain(context.Background(), 137, wallet.Handlers{}))
	assert.Equal(t, 1, p.CallCount(connector.MethodAddChain))
	assert.Equal(t, 2, p.CallCount(connector.MethodSwitchChain))

	// The fake still reports BNB, so the read-back leaves the session alone
	// until the wallet pushes the change.
	assert.Equal(t, uint64(56), h.ctrl.Session().ChainID())
	p.Emit(eip1193.EventChainChanged, "0x89")
	assert.Equal(t, uint64(137), h.ctrl.Session().ChainID())
	assert.Equal(t, uint64(137), h.persisted(t).ChainID())
}

func TestSetChainRequestPending(t *testing.T) {
	p := walletFake().Fail(connector.MethodSwitchChain,
		eip1193.NewError(eip1193.CodeResourceUnavailable, "Request already pending"))
	h := newHarness(t, p)
	h.connect(t)

	err := h.ctrl.SetChain(context.Background(), 1, wallet.Handlers{})
	assert.ErrorIs(t, err, eip1193.ErrRequestAlreadyPending)
	assert.Zero(t, p.CallCount(connector.MethodAddChain))

	var pending error
	err = h.ctrl.SetChain(context.Background(), 1, wallet.Handlers{
		OnRequestAlreadyPending: func(err error) { pending = err },
	})
	require.NoError(t, err)
	assert.ErrorIs(t, pending, eip1193.ErrRequestAlreadyPending)
}

func TestSetChainRejected(t *testing.T) {
	p := walletFake().Fail(connector.MethodSwitchChain,
		eip1193.NewError(eip1193.CodeUserRejectedRequest, "User rejected the request."))
	h := newHarness(t, p)
	h.connect(t)

	var rejected error
	err := h.ctrl.SetChain(context.Background(), 1, wallet.Handlers{
		OnReject: func(err error) { rejected = err },
	})
	require.NoError(t, err)
	assert.ErrorIs(t, rejected, eip1193.ErrUserRejected)
	assert.Equal(t, uint64(56), h.ctrl.Session().ChainID())
}

func TestSetChainReadsBackChain(t *testing.T) {
	p := walletFake().Reply(connector.MethodSwitchChain, nil)
	h := newHarness(t, p)
	h.connect(t)

	p.Reply("eth_chainId", "0x1")
	require.NoError(t, h.ctrl.SetChain(context.Background(), 1, wallet.Handlers{}))
	assert.Equal(t, uint64(1), h.ctrl.Session().ChainID(), "no chainChanged event was pushed")
}

func TestSetChainWithoutEvents(t *testing.T) {
	p := walletFake().Reply(connector.MethodSwitchChain, nil)
	// Wrapping hides the fake's event methods.
	h := newHarness(t, struct{ eip1193.Provider }{p})
	h.connect(t)

	require.NoError(t, h.ctrl.SetChain(context.Background(), 1, wallet.Handlers{}))
	assert.Equal(t, uint64(1), h.ctrl.Session().ChainID())
	assert.Equal(t, uint64(1), h.persisted(t).ChainID())
}

func TestAddChain(t *testing.T) {
	p := walletFake().
		Reply(connector.MethodAddChain, nil).
		Reply(connector.MethodSwitchChain, nil)
	h := newHarness(t, p)

	err := h.ctrl.AddChain(context.Background(), 137, wallet.Handlers{})
	assert.ErrorIs(t, err, wallet.ErrWalletNotConnected)

	h.connect(t)
	p.Reply("eth_chainId", "0x89")
	require.NoError(t, h.ctrl.AddChain(context.Background(), 137, wallet.Handlers{}))

	calls := p.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	tail := calls[len(calls)-3:]
	assert.Equal(t, connector.MethodAddChain, tail[0].Method)
	assert.Contains(t, string(tail[0].Params), `"chainId":"0x89"`)
	assert.Equal(t, connector.MethodSwitchChain, tail[1].Method)
	assert.Contains(t, string(tail[1].Params), `"chainId":"0x89"`)
	assert.Equal(t, "eth_chainId", tail[2].Method)

	assert.Equal(t, uint64(137), h.ctrl.Session().ChainID())
	assert.Equal(t, uint64(137), h.persisted(t).ChainID())
}

func TestAccountsChanged(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	h.connect(t)

	p.Emit(eip1193.EventAccountsChanged, []string{"0x000000000000000000000000000000000000dEaD"})
	s := h.ctrl.Session()
	require.NotNil(t, s)
	assert.Equal(t, "0x000000000000000000000000000000000000dead", s.Address())
	assert.Equal(t, uint64(56), s.ChainID())

	p.Emit(eip1193.EventAccountsChanged, []string{})
	assert.Nil(t, h.ctrl.Session())
	assert.Nil(t, h.persisted(t))
	assert.Nil(t, h.rec.all()[len(h.rec.all())-1])
}

func TestChainChanged(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)

	p.Emit(eip1193.EventChainChanged, "0x1")
	assert.Empty(t, h.rec.all(), "ignored without a session")

	h.connect(t)
	p.Emit(eip1193.EventChainChanged, "0x1")
	assert.Equal(t, uint64(1), h.ctrl.Session().ChainID())

	p.Emit(eip1193.EventChainChanged, "0x2a")
	assert.Zero(t, h.ctrl.Session().ChainID(), "unsupported chains are recorded as zero")

	p.Emit(eip1193.EventChainChanged, "0x2a")
	assert.Len(t, h.rec.all(), 3, "unchanged sessions are not committed again")
}

func TestDisconnectEvent(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	h.connect(t)
	p.Emit(eip1193.EventDisconnect, map[string]any{"code": 4900})
	assert.Nil(t, h.ctrl.Session())
}

func TestReconnect(t *testing.T) {
	h := newHarness(t, walletFake())
	stored := wallet.NewSession(connector.IDBrowser, 1, lowered, true)
	require.NoError(t, h.store.Save(stored))

	require.NoError(t, h.ctrl.Reconnect(context.Background(), wallet.Handlers{}))

	updates := h.rec.all()
	require.Len(t, updates, 2)
	assert.True(t, stored.Disconnected().Equal(updates[0]), "resumed state is published first")
	assert.True(t, wallet.NewSession(connector.IDBrowser, 56, lowered, true).Equal(updates[1]))

	require.NoError(t, h.ctrl.Reconnect(context.Background(), wallet.Handlers{}))
	assert.Len(t, h.rec.all(), 2, "no-op while live")
}

func TestReconnectWithoutConnector(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)
	require.NoError(t, h.store.Save(wallet.NewSession("", 0, "", false)))

	require.NoError(t, h.ctrl.Reconnect(context.Background(), wallet.Handlers{}))
	assert.Len(t, h.rec.all(), 1)
	assert.Empty(t, p.Calls())
}

func TestReconnectIgnoresInvalidRecord(t *testing.T) {
	h := newHarness(t, walletFake())
	require.NoError(t, h.kv.Set(wallet.StorageKey, []byte(`{"address":"nope","connected":true}`)))

	require.NoError(t, h.ctrl.Reconnect(context.Background(), wallet.Handlers{}))
	assert.Nil(t, h.ctrl.Session())
	assert.Empty(t, h.rec.all())
}

func TestSessionFallsBackToStore(t *testing.T) {
	h := newHarness(t, walletFake())
	assert.Nil(t, h.ctrl.Session())
	stored := wallet.NewSession(connector.IDMetaMask, 1, lowered, false)
	require.NoError(t, h.store.Save(stored))
	assert.True(t, stored.Equal(h.ctrl.Session()))
}

func TestRequest(t *testing.T) {
	p := walletFake().Reply("eth_blockNumber", "0x10")
	h := newHarness(t, p)

	_, err := h.ctrl.Request(context.Background(), "eth_blockNumber", nil)
	assert.ErrorIs(t, err, wallet.ErrWalletNotConnected)

	h.connect(t)
	raw, err := h.ctrl.Request(context.Background(), "eth_blockNumber", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(raw))

	_, err = h.ctrl.Request(context.Background(), "eth_signTypedData_v4", nil)
	assert.ErrorIs(t, err, wallet.ErrUnsupportedRequest)
}

func TestSigner(t *testing.T) {
	p := walletFake()
	h := newHarness(t, p)

	_, err := h.ctrl.Signer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrSignerUnavailable)

	h.connect(t)
	signer, err := h.ctrl.Signer(context.Background())
	require.NoError(t, err)
	addr, err := signer.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(account), addr)

	p.Fail("eth_accounts", eip1193.NewError(eip1193.CodeInternal, "unknown account"))
	_, err = h.ctrl.Signer(context.Background())
	assert.ErrorIs(t, err, wallet.ErrSignerUnavailable)
	assert.ErrorContains(t, err, "unknown account")
}
