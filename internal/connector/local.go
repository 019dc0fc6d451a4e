package connector

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/keys"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend serves reads and broadcasts for one chain.
type Backend interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Broadcast(ctx context.Context, signed *types.Transaction) error
}

// Backends returns the backend for a chain.
type Backends func(chainID uint64) (Backend, error)

// PoolBackend serves reads through a pool and broadcasts through the next
// endpoint in its rotation.
type PoolBackend struct {
	*rpc.Pool
}

// Broadcast implements Backend.
func (b PoolBackend) Broadcast(ctx context.Context, signed *types.Transaction) error {
	return b.Next().SendTransaction(ctx, signed)
}

// PoolBackends adapts a pool lookup.
func PoolBackends(pools func(uint64) (*rpc.Pool, error)) Backends {
	return func(id uint64) (Backend, error) {
		p, err := pools(id)
		if err != nil {
			return nil, err
		}
		return PoolBackend{p}, nil
	}
}

// LocalOptions configures the local key connector.
type LocalOptions struct {
	Keys    *keys.Keystore
	KeyName string
	// ChainID is the chain the wallet starts on. It is always known.
	ChainID  uint64
	Backends Backends
	Logger   *zap.Logger
}

// Local signs in-process with a key from the keystore.
type Local struct {
	opts LocalOptions
	neg  *Negotiator
	log  *zap.Logger

	mu       sync.Mutex
	provider *LocalProvider
}

// NewLocal returns the local key connector.
func NewLocal(opts LocalOptions, neg *Negotiator) *Local {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{opts: opts, neg: neg, log: log.Named("connector.local")}
}

func (l *Local) ID() string   { return IDLocal }
func (l *Local) Name() string { return "Local Key" }

// Provider loads the key on first use.
func (l *Local) Provider(context.Context) (eip1193.Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.provider != nil {
		return l.provider, nil
	}
	if l.opts.Keys == nil || l.opts.KeyName == "" {
		return nil, eip1193.ErrProviderUnavailable
	}
	priv, err := l.opts.Keys.Load(l.opts.KeyName)
	if errors.Is(err, keys.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: key %q not found", eip1193.ErrProviderUnavailable, l.opts.KeyName)
	}
	if err != nil {
		return nil, err
	}
	l.provider = NewLocalProvider(priv, l.opts.ChainID, l.opts.Backends, l.log)
	return l.provider, nil
}

// SetChain implements Connector.
func (l *Local) SetChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	return l.neg.Switch(ctx, p, id)
}

// AddChain implements Connector.
func (l *Local) AddChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	return l.neg.Add(ctx, p, id)
}

// LocalProvider is an EIP-1193 provider backed by a private key. Like a
// browser wallet it only knows its starting chain until others are added.
type LocalProvider struct {
	priv     *ecdsa.PrivateKey
	address  common.Address
	backends Backends
	events   *emitter
	log      *zap.Logger

	mu      sync.Mutex
	chainID uint64
	known   map[uint64]bool
}

// NewLocalProvider returns a provider for priv starting on chainID.
func NewLocalProvider(priv *ecdsa.PrivateKey, chainID uint64, backends Backends, log *zap.Logger) *LocalProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalProvider{
		priv:     priv,
		address:  crypto.PubkeyToAddress(priv.PublicKey),
		backends: backends,
		events:   newEmitter(),
		log:      log,
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true},
	}
}

// Address returns the key's address.
func (p *LocalProvider) Address() common.Address { return p.address }

// On implements eip1193.EventSource.
func (p *LocalProvider) On(event string, fn eip1193.Listener) func() {
	return p.events.on(event, fn)
}

// Request implements eip1193.Provider.
func (p *LocalProvider) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]string{p.address.Hex()})
	case "eth_chainId":
		return json.Marshal(chain.HexID(p.currentChain()))
	case MethodSwitchChain:
		return p.switchChain(params)
	case MethodAddChain:
		return p.addChain(params)
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, params)
	case "personal_sign":
		return p.personalSign(params)
	case "eth_sign", "eth_signTypedData", "eth_signTypedData_v3", "eth_signTypedData_v4":
		return nil, eip1193.NewError(eip1193.CodeUnsupportedMethod, method+" is not supported by the local wallet")
	}

	backend, err := p.backend()
	if err != nil {
		return nil, err
	}
	args, err := positional(params)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := backend.CallContext(ctx, &raw, method, args...); err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *LocalProvider) currentChain() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

func (p *LocalProvider) backend() (Backend, error) {
	if p.backends == nil {
		return nil, eip1193.NewError(eip1193.CodeChainDisconnected, "local wallet has no rpc backend")
	}
	id := p.currentChain()
	b, err := p.backends(id)
	if err != nil {
		return nil, eip1193.NewError(eip1193.CodeChainDisconnected, fmt.Sprintf("no rpc backend for chain %d: %v", id, err))
	}
	return b, nil
}

func (p *LocalProvider) switchChain(params any) (json.RawMessage, error) {
	id, ok := switchTarget(params)
	if !ok {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, "expected [{chainId}]")
	}
	p.mu.Lock()
	if !p.known[id] {
		p.mu.Unlock()
		return nil, eip1193.NewError(eip1193.CodeMissingRequestedChain,
			fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", chain.HexID(id)))
	}
	changed := p.chainID != id
	p.chainID = id
	p.mu.Unlock()

	if changed {
		p.log.Debug("local wallet switched chain", zap.Uint64("chain", id))
		p.events.emit(eip1193.EventChainChanged, chain.HexID(id))
	}
	return json.RawMessage("null"), nil
}

func (p *LocalProvider) addChain(params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var list []AddChainParams
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, "expected [{chainId, chainName, nativeCurrency, rpcUrls}]")
	}
	id, err := chain.DecodeID(list[0].ChainID)
	if err != nil {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, err.Error())
	}
	if p.backends == nil {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, "local wallet has no rpc backend")
	}
	if _, err := p.backends(id); err != nil {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, fmt.Sprintf("cannot serve chain %d: %v", id, err))
	}

	p.mu.Lock()
	p.known[id] = true
	p.mu.Unlock()
	return json.RawMessage("null"), nil
}

func (p *LocalProvider) sendTransaction(ctx context.Context, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var list []tx.Request
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, "expected [transaction]")
	}
	req := list[0]
	if req.From != nil && *req.From != p.address {
		return nil, eip1193.NewError(eip1193.CodeUnauthorized, "from does not match the local account")
	}
	req.From = &p.address

	backend, err := p.backend()
	if err != nil {
		return nil, err
	}
	chainID := p.currentChain()
	unsigned, err := p.fill(ctx, backend, chainID, req)
	if err != nil {
		return nil, err
	}
	signed, err := keys.SignTx(p.priv, unsigned, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, err
	}
	if err := backend.Broadcast(ctx, signed); err != nil {
		return nil, err
	}
	p.log.Info("transaction broadcast", zap.Uint64("chain", chainID), zap.Stringer("hash", signed.Hash()))
	return json.Marshal(signed.Hash())
}

// fill completes nonce, gas and fees from the backend. Requests carrying
// EIP-1559 fees become dynamic fee transactions, the rest legacy ones.
func (p *LocalProvider) fill(ctx context.Context, b Backend, chainID uint64, req tx.Request) (*types.Transaction, error) {
	var nonce uint64
	if req.Nonce != nil {
		nonce = uint64(*req.Nonce)
	} else {
		n, err := b.PendingNonceAt(ctx, p.address)
		if err != nil {
			return nil, fmt.Errorf("fetching nonce: %w", err)
		}
		nonce = n
	}

	var gas uint64
	if req.Gas != nil {
		gas = uint64(*req.Gas)
	} else {
		g, err := b.EstimateGas(ctx, req.CallMsg())
		if err != nil {
			return nil, fmt.Errorf("estimating gas: %w", err)
		}
		gas = g
	}

	value := new(big.Int)
	if req.Value != nil {
		value = req.Value.ToInt()
	}

	if req.MaxFeePerGas != nil {
		tip := new(big.Int)
		if req.MaxPriorityFeePerGas != nil {
			tip = req.MaxPriorityFeePerGas.ToInt()
		}
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(chainID),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: req.MaxFeePerGas.ToInt(),
			Gas:       gas,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		}), nil
	}

	var gasPrice *big.Int
	if req.GasPrice != nil {
		gasPrice = req.GasPrice.ToInt()
	} else {
		gp, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching gas price: %w", err)
		}
		gasPrice = gp
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       req.To,
		Value:    value,
		Data:     req.Data,
	}), nil
}

func (p *LocalProvider) personalSign(params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return nil, eip1193.NewError(eip1193.CodeInvalidParams, "expected [message, address]")
	}
	if len(list) > 1 && !strings.EqualFold(list[1], p.address.Hex()) {
		return nil, eip1193.NewError(eip1193.CodeUnauthorized, "address does not match the local account")
	}

	msg, err := hexutil.Decode(list[0])
	if err != nil {
		msg = []byte(list[0])
	}
	sig, err := keys.SignMessage(p.priv, msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(sig))
}
