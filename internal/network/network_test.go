package network_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/network"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sender = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

var txHash = common.HexToHash("0xabcdef")

// node is an httptest JSON-RPC node that mines the test transaction after
// a few receipt polls.
type node struct {
	*httptest.Server
	mu       sync.Mutex
	polls    int
	head     uint64
	methods  []string
	estimate string
}

func newNode(t *testing.T) *node {
	t.Helper()
	n := &node{head: 100, estimate: "0x5208"}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": n.answer(req.Method)}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(n.Close)
	return n
}

func (n *node) answer(method string) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, method)
	switch method {
	case "eth_estimateGas":
		return n.estimate
	case "eth_blockNumber":
		n.head++
		return hexUint(n.head)
	case "eth_getTransactionReceipt":
		n.polls++
		if n.polls < 2 {
			return nil
		}
		receipt := &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: 21000,
			GasUsed:           21000,
			Logs:              []*types.Log{},
			TxHash:            txHash,
			BlockNumber:       big.NewInt(101),
		}
		return receipt
	}
	return nil
}

func (n *node) calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.methods {
		if m == method {
			c++
		}
	}
	return c
}

func hexUint(v uint64) string { return "0x" + big.NewInt(0).SetUint64(v).Text(16) }

type fakeWallet struct {
	session  *wallet.Session
	provider *eip1193.Fake
}

func (w *fakeWallet) Session() *wallet.Session { return w.session }

func (w *fakeWallet) Signer(context.Context) (*wallet.Signer, error) {
	return wallet.NewSigner(w.provider, common.HexToAddress(sender)), nil
}

func registry(t *testing.T, url string) *chain.Registry {
	t.Helper()
	c, err := chain.New(56, "bsc", "BNB Smart Chain", false, chain.Currency{Name: "BNB", Symbol: "BNB"}, "", []string{url})
	require.NoError(t, err)
	return chain.NewRegistry(c)
}

func newNetwork(t *testing.T, n *node, opts network.Options) *network.Network {
	t.Helper()
	opts.PollInterval = 10 * time.Millisecond
	net, err := network.New(context.Background(), registry(t, n.URL), opts)
	require.NoError(t, err)
	t.Cleanup(net.Close)
	return net
}

func TestPoolLookup(t *testing.T) {
	net := newNetwork(t, newNode(t), network.Options{})
	p, err := net.Pool(56)
	require.NoError(t, err)
	assert.Equal(t, uint64(56), p.ChainID())

	_, err = net.Pool(1)
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
}

func TestLimiterModes(t *testing.T) {
	n := newNode(t)
	urls := []string{n.URL, n.URL}
	a, err := chain.New(1, "eth", "Ethereum", false, chain.Currency{}, "", urls)
	require.NoError(t, err)
	b, err := chain.New(56, "bsc", "BNB", false, chain.Currency{}, "", urls)
	require.NoError(t, err)
	reg := chain.NewRegistry(a, b)

	limiters := func(t *testing.T, limits *network.Limits) []*rpc.Limiter {
		net, err := network.New(context.Background(), reg, network.Options{Limits: limits})
		require.NoError(t, err)
		defer net.Close()
		var out []*rpc.Limiter
		for _, id := range []uint64{1, 56} {
			p, err := net.Pool(id)
			require.NoError(t, err)
			for _, ep := range p.Endpoints() {
				out = append(out, ep.Limiter())
			}
		}
		return out
	}

	t.Run("shared by default", func(t *testing.T) {
		ls := limiters(t, &network.Limits{RequestsPerInterval: 5, Interval: time.Second})
		require.Len(t, ls, 4)
		require.NotNil(t, ls[0])
		for _, l := range ls[1:] {
			assert.Same(t, ls[0], l)
		}

		mode, err := rpc.ParseLimiterMode("")
		require.NoError(t, err)
		parsed := limiters(t, &network.Limits{RequestsPerInterval: 5, Interval: time.Second, Mode: mode})
		require.NotNil(t, parsed[0])
		for _, l := range parsed[1:] {
			assert.Same(t, parsed[0], l)
		}
	})
	t.Run("private", func(t *testing.T) {
		ls := limiters(t, &network.Limits{RequestsPerInterval: 5, Interval: time.Second, Mode: rpc.LimiterPrivate})
		require.Len(t, ls, 4)
		assert.NotSame(t, ls[0], ls[1])
		assert.NotSame(t, ls[1], ls[2])
	})
	t.Run("none", func(t *testing.T) {
		for _, l := range limiters(t, &network.Limits{Mode: rpc.LimiterNone}) {
			assert.Nil(t, l)
		}
		for _, l := range limiters(t, nil) {
			assert.Nil(t, l)
		}
	})

	_, err = network.New(context.Background(), reg, network.Options{Limits: &network.Limits{Mode: rpc.LimiterShared}})
	assert.ErrorIs(t, err, rpc.ErrInvalidLimit)
}

func TestInitializeTransactionUsesSessionPool(t *testing.T) {
	n := newNode(t)
	net := newNetwork(t, n, network.Options{})

	_, err := net.InitializeTransaction(context.Background(), tx.Request{})
	assert.ErrorIs(t, err, wallet.ErrWalletNotConnected)

	p := eip1193.NewFake()
	net.Attach(&fakeWallet{session: wallet.NewSession("local", 56, sender, true), provider: p})

	prepared, err := net.InitializeTransaction(context.Background(), tx.Request{})
	require.NoError(t, err)
	assert.Equal(t, uint64(42000), prepared.Gas())
	assert.Equal(t, 1, n.calls("eth_estimateGas"))
	assert.Zero(t, p.CallCount("eth_estimateGas"), "estimates come from the pool")
}

func TestSendTransactionUnsupportedChain(t *testing.T) {
	net := newNetwork(t, newNode(t), network.Options{})
	net.Attach(&fakeWallet{session: wallet.NewSession("metamask", 0, sender, true), provider: eip1193.NewFake()})

	_, err := net.SendTransaction(context.Background(), tx.Request{}, network.SendOptions{})
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
}

func TestSendTransactionWaitsForConfirmations(t *testing.T) {
	n := newNode(t)
	net := newNetwork(t, n, network.Options{Confirmations: 1})
	p := eip1193.NewFake().Reply("eth_sendTransaction", txHash)
	net.Attach(&fakeWallet{session: wallet.NewSession("local", 56, sender, true), provider: p})

	var sent common.Hash
	var confirmed *types.Receipt
	receipt, err := net.SendTransaction(context.Background(), tx.Request{}, network.SendOptions{
		OnSend:        func(h common.Hash) { sent = h },
		OnConfirm:     func(r *types.Receipt) { confirmed = r },
		GasMultiplier: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, txHash, sent)
	require.NotNil(t, receipt)
	assert.Same(t, receipt, confirmed)
	assert.Equal(t, txHash, receipt.TxHash)
	assert.Equal(t, 2, n.calls("eth_getTransactionReceipt"))

	var reqs []map[string]any
	require.NoError(t, json.Unmarshal(p.Calls()[0].Params, &reqs))
	assert.Equal(t, "0x7b0c", reqs[0]["gas"], "21000 scaled by 1.5")
}

func TestSendTransactionWithoutWaiting(t *testing.T) {
	n := newNode(t)
	net := newNetwork(t, n, network.Options{Confirmations: 3})
	net.Attach(&fakeWallet{
		session:  wallet.NewSession("local", 56, sender, true),
		provider: eip1193.NewFake().Reply("eth_sendTransaction", txHash),
	})

	zero := uint64(0)
	receipt, err := net.SendTransaction(context.Background(), tx.Request{}, network.SendOptions{Confirmations: &zero})
	require.NoError(t, err)
	assert.Nil(t, receipt)
	assert.Zero(t, n.calls("eth_getTransactionReceipt"))
}

type chainStub struct {
	receipt *types.Receipt
	heads   []uint64
}

func (c *chainStub) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return c.receipt, nil
}

func (c *chainStub) BlockNumber(context.Context) (uint64, error) {
	h := c.heads[0]
	if len(c.heads) > 1 {
		c.heads = c.heads[1:]
	}
	return h, nil
}

func TestWaitForReceiptCountsConfirmations(t *testing.T) {
	stub := &chainStub{receipt: &types.Receipt{BlockNumber: big.NewInt(10)}, heads: []uint64{10, 11, 12}}
	r, err := network.WaitForReceipt(context.Background(), stub, txHash, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, stub.receipt, r)
	assert.Equal(t, []uint64{12}, stub.heads)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stub = &chainStub{receipt: &types.Receipt{BlockNumber: big.NewInt(10)}, heads: []uint64{10}}
	_, err = network.WaitForReceipt(ctx, stub, txHash, 5, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
