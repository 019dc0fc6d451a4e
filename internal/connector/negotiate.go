package connector

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"go.uber.org/zap"
)

// Wallet methods used during negotiation.
const (
	MethodSwitchChain = "wallet_switchEthereumChain"
	MethodAddChain    = "wallet_addEthereumChain"
)

// NativeCurrency is the nativeCurrency field of wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParams is the single parameter of wallet_addEthereumChain.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// NewAddChainParams describes c for wallet_addEthereumChain.
func NewAddChainParams(c chain.Chain) AddChainParams {
	p := AddChainParams{
		ChainID:   chain.HexID(c.ID),
		ChainName: c.Name,
		NativeCurrency: NativeCurrency{
			Name:     c.Currency.Name,
			Symbol:   c.Currency.Symbol,
			Decimals: 18,
		},
		RPCURLs: append([]string(nil), c.RPCURLs...),
	}
	if c.Explorer != "" {
		p.BlockExplorerURLs = []string{c.Explorer}
	}
	return p
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

// Negotiator runs the switch/add-chain exchange with a provider. A switch
// that fails because the chain is missing is escalated to add-chain once;
// the retried switch is never escalated again.
type Negotiator struct {
	chains *chain.Registry
	log    *zap.Logger
}

// NewNegotiator returns a Negotiator describing chains from reg.
func NewNegotiator(reg *chain.Registry, log *zap.Logger) *Negotiator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Negotiator{chains: reg, log: log.Named("negotiator")}
}

// Switch moves the provider to id, adding the chain when it is missing.
func (n *Negotiator) Switch(ctx context.Context, p eip1193.Provider, id uint64) error {
	if _, err := n.chains.Get(id); err != nil {
		return err
	}
	err := n.switchChain(ctx, p, id)
	if err == nil || !eip1193.IsMissingChain(err) {
		return classify(err)
	}

	n.log.Debug("chain missing in wallet, adding", zap.Uint64("chain", id), zap.Error(err))
	if err := n.addChain(ctx, p, id); err != nil {
		return classify(err)
	}
	return classify(n.switchChain(ctx, p, id))
}

// Add registers id with the provider and then switches to it.
func (n *Negotiator) Add(ctx context.Context, p eip1193.Provider, id uint64) error {
	if err := n.addChain(ctx, p, id); err != nil {
		return classify(err)
	}
	return classify(n.switchChain(ctx, p, id))
}

func (n *Negotiator) switchChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	_, err := p.Request(ctx, MethodSwitchChain, []switchChainParams{{ChainID: chain.HexID(id)}})
	return err
}

func (n *Negotiator) addChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	c, err := n.chains.Get(id)
	if err != nil {
		return err
	}
	_, err = p.Request(ctx, MethodAddChain, []AddChainParams{NewAddChainParams(c)})
	return err
}

// classify tags rejection and already-pending failures with their sentinel
// while keeping the provider error in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case eip1193.HasCode(err, eip1193.CodeResourceUnavailable):
		return fmt.Errorf("%w: %w", eip1193.ErrRequestAlreadyPending, err)
	case eip1193.HasCode(err, eip1193.CodeUserRejectedRequest):
		return fmt.Errorf("%w: %w", eip1193.ErrUserRejected, err)
	default:
		return err
	}
}
