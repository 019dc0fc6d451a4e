package connector_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/Mohsinsiddi/w3link/internal/connector"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/keys"
	"github.com/Mohsinsiddi/w3link/internal/storage"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type fakeBackend struct {
	chainID   uint64
	broadcast []*types.Transaction
	calls     []string
}

func (b *fakeBackend) CallContext(_ context.Context, result any, method string, args ...any) error {
	b.calls = append(b.calls, method)
	raw, _ := json.Marshal(fmt.Sprintf("%s@%d", method, b.chainID))
	*(result.(*json.RawMessage)) = raw
	return nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(3e9), nil }

func (b *fakeBackend) Broadcast(_ context.Context, signed *types.Transaction) error {
	b.broadcast = append(b.broadcast, signed)
	return nil
}

type fakeBackends map[uint64]*fakeBackend

func (f fakeBackends) lookup(id uint64) (connector.Backend, error) {
	b, ok := f[id]
	if !ok {
		return nil, errors.New("no pool")
	}
	return b, nil
}

func newLocal(t *testing.T, backends fakeBackends) *connector.Local {
	t.Helper()
	ks := keys.NewKeystore(storage.NewMemory())
	_, err := ks.Import("dev", devKey)
	require.NoError(t, err)
	return connector.NewLocal(connector.LocalOptions{
		Keys:     ks,
		KeyName:  "dev",
		ChainID:  1,
		Backends: backends.lookup,
	}, negotiator())
}

func TestLocalProviderBasics(t *testing.T) {
	backends := fakeBackends{1: {chainID: 1}}
	l := newLocal(t, backends)
	p, err := l.Provider(context.Background())
	require.NoError(t, err)

	accounts, err := eip1193.Call[[]string](context.Background(), p, "eth_requestAccounts", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{devAddress}, accounts)

	id, err := eip1193.Call[string](context.Background(), p, "eth_chainId", nil)
	require.NoError(t, err)
	assert.Equal(t, "0x1", id)

	block, err := eip1193.Call[string](context.Background(), p, "eth_blockNumber", []any{})
	require.NoError(t, err)
	assert.Equal(t, "eth_blockNumber@1", block, "reads go to the current chain's backend")

	_, err = p.Request(context.Background(), "eth_signTypedData_v4", nil)
	assert.True(t, eip1193.IsUnsupportedMethod(err))

	again, err := l.Provider(context.Background())
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestLocalProviderMissingKey(t *testing.T) {
	l := connector.NewLocal(connector.LocalOptions{Keys: keys.NewKeystore(storage.NewMemory()), KeyName: "ghost"}, negotiator())
	_, err := l.Provider(context.Background())
	assert.ErrorIs(t, err, eip1193.ErrProviderUnavailable)

	_, err = connector.NewLocal(connector.LocalOptions{}, negotiator()).Provider(context.Background())
	assert.ErrorIs(t, err, eip1193.ErrProviderUnavailable)
}

func TestLocalNegotiatesUnknownChain(t *testing.T) {
	backends := fakeBackends{1: {chainID: 1}, 56: {chainID: 56}}
	l := newLocal(t, backends)
	p, err := l.Provider(context.Background())
	require.NoError(t, err)

	var changes []string
	p.(eip1193.EventSource).On(eip1193.EventChainChanged, func(raw json.RawMessage) {
		var id string
		require.NoError(t, json.Unmarshal(raw, &id))
		changes = append(changes, id)
	})

	// The wallet only knows chain 1, so switching escalates to add-chain.
	require.NoError(t, l.SetChain(context.Background(), p, 56))
	assert.Equal(t, []string{"0x38"}, changes)

	block, err := eip1193.Call[string](context.Background(), p, "eth_blockNumber", nil)
	require.NoError(t, err)
	assert.Equal(t, "eth_blockNumber@56", block)

	// Polygon has no backend: add-chain is refused and the error surfaces.
	err = l.SetChain(context.Background(), p, 137)
	code, ok := eip1193.CodeOf(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, eip1193.CodeInvalidParams, code)
}

func TestLocalSendTransaction(t *testing.T) {
	backend := &fakeBackend{chainID: 56}
	l := newLocal(t, fakeBackends{1: {chainID: 1}, 56: backend})
	p, err := l.Provider(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.AddChain(context.Background(), p, 56))

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	hash, err := eip1193.Call[common.Hash](context.Background(), p, "eth_sendTransaction", []map[string]any{{
		"to":    to,
		"value": hexutil.EncodeBig(big.NewInt(1000)),
	}})
	require.NoError(t, err)

	require.Len(t, backend.broadcast, 1)
	sent := backend.broadcast[0]
	assert.Equal(t, hash, sent.Hash())
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, uint64(21000), sent.Gas())
	assert.Equal(t, big.NewInt(3e9), sent.GasPrice())
	assert.Equal(t, big.NewInt(1000), sent.Value())
	assert.Equal(t, &to, sent.To())

	from, err := types.Sender(types.NewLondonSigner(big.NewInt(56)), sent)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddress), from)
}

func TestLocalSendTransactionDynamicFee(t *testing.T) {
	backend := &fakeBackend{chainID: 1}
	l := newLocal(t, fakeBackends{1: backend})
	p, err := l.Provider(context.Background())
	require.NoError(t, err)

	_, err = p.Request(context.Background(), "eth_sendTransaction", []map[string]any{{
		"to":                   "0x000000000000000000000000000000000000dEaD",
		"gas":                  "0x5208",
		"nonce":                "0x1",
		"maxFeePerGas":         "0x77359400",
		"maxPriorityFeePerGas": "0x3b9aca00",
	}})
	require.NoError(t, err)
	require.Len(t, backend.broadcast, 1)
	sent := backend.broadcast[0]
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent.Type())
	assert.Equal(t, uint64(1), sent.Nonce())
	assert.Equal(t, big.NewInt(2e9), sent.GasFeeCap())
	assert.Equal(t, big.NewInt(1e9), sent.GasTipCap())
}

func TestLocalRejectsForeignSender(t *testing.T) {
	l := newLocal(t, fakeBackends{1: {chainID: 1}})
	p, err := l.Provider(context.Background())
	require.NoError(t, err)

	_, err = p.Request(context.Background(), "eth_sendTransaction", []map[string]any{{
		"from": "0x000000000000000000000000000000000000dEaD",
	}})
	assert.True(t, eip1193.HasCode(err, eip1193.CodeUnauthorized))
}

func TestLocalPersonalSign(t *testing.T) {
	l := newLocal(t, fakeBackends{1: {chainID: 1}})
	p, err := l.Provider(context.Background())
	require.NoError(t, err)

	sigHex, err := eip1193.Call[string](context.Background(), p, "personal_sign",
		[]string{hexutil.Encode([]byte("hello")), devAddress})
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	signer, err := keys.VerifyMessage([]byte("hello"), sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddress), signer)

	_, err = p.Request(context.Background(), "personal_sign", []string{"0x00", "0x000000000000000000000000000000000000dEaD"})
	assert.True(t, eip1193.HasCode(err, eip1193.CodeUnauthorized))
}
