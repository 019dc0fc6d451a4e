package chain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnsupportedChain is returned when a chain id is not in the registry.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrInvalidChainConfig is returned when a chain has no RPC endpoints.
	ErrInvalidChainConfig = errors.New("invalid chain configuration")
)

// Currency is the native currency of a chain. Decimals are always 18.
type Currency struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Chain describes one EVM network. Values are built once with New and never
// mutated afterwards.
type Chain struct {
	ID       uint64   `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Testnet  bool     `json:"testnet"`
	Currency Currency `json:"currency"`
	Explorer string   `json:"explorer"`
	RPCURLs  []string `json:"rpc_urls"`
}

// New validates and returns a chain descriptor.
func New(id uint64, slug, name string, testnet bool, cur Currency, explorer string, rpcURLs []string) (Chain, error) {
	if len(rpcURLs) == 0 {
		return Chain{}, fmt.Errorf("chain %d: %w", id, ErrInvalidChainConfig)
	}
	return Chain{
		ID:       id,
		Slug:     slug,
		Name:     name,
		Testnet:  testnet,
		Currency: cur,
		Explorer: explorer,
		RPCURLs:  slices.Clone(rpcURLs),
	}, nil
}

// RPC returns the primary RPC URL.
func (c Chain) RPC() string {
	return c.RPCURLs[0]
}

// WithRPCs returns a copy of c using the given RPC URLs.
func (c Chain) WithRPCs(urls []string) (Chain, error) {
	return New(c.ID, c.Slug, c.Name, c.Testnet, c.Currency, c.Explorer, urls)
}

// Registry is a read-only chain directory.
type Registry struct {
	chains []Chain
	byID   map[uint64]Chain
	bySlug map[string]Chain
}

// NewRegistry builds a registry from the given chains. With no arguments the
// built-in chain table is used.
func NewRegistry(chains ...Chain) *Registry {
	if len(chains) == 0 {
		chains = builtinChains()
	}
	r := &Registry{
		chains: slices.Clone(chains),
		byID:   make(map[uint64]Chain, len(chains)),
		bySlug: make(map[string]Chain, len(chains)),
	}
	for _, c := range r.chains {
		r.byID[c.ID] = c
		if c.Slug != "" {
			r.bySlug[c.Slug] = c
		}
	}
	return r
}

// All returns every chain in registration order.
func (r *Registry) All() []Chain {
	return slices.Clone(r.chains)
}

// IDs returns every chain id in registration order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for _, c := range r.chains {
		ids = append(ids, c.ID)
	}
	return ids
}

// Get finds a chain by id.
func (r *Registry) Get(id uint64) (Chain, error) {
	c, ok := r.byID[id]
	if !ok {
		return Chain{}, fmt.Errorf("chain %d: %w", id, ErrUnsupportedChain)
	}
	return c, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id uint64) bool {
	_, ok := r.byID[id]
	return ok
}

// Lookup resolves a slug ("bnb-testnet"), decimal id or hex id.
func (r *Registry) Lookup(s string) (Chain, error) {
	if c, ok := r.bySlug[strings.ToLower(s)]; ok {
		return c, nil
	}
	id, err := r.ParseIDOrFail(s)
	if err != nil {
		return Chain{}, err
	}
	return r.byID[id], nil
}

// Mainnets returns the non-test chains.
func (r *Registry) Mainnets() []Chain {
	return r.filter(func(c Chain) bool { return !c.Testnet })
}

// Testnets returns the test chains.
func (r *Registry) Testnets() []Chain {
	return r.filter(func(c Chain) bool { return c.Testnet })
}

// Override replaces the RPC URLs of registered chains. Unknown ids are ignored.
func (r *Registry) Override(rpcs map[uint64][]string) (*Registry, error) {
	chains := r.All()
	for i, c := range chains {
		urls, ok := rpcs[c.ID]
		if !ok {
			continue
		}
		updated, err := c.WithRPCs(urls)
		if err != nil {
			return nil, err
		}
		chains[i] = updated
	}
	return NewRegistry(chains...), nil
}

// Subset returns a registry restricted to ids, in that order.
func (r *Registry) Subset(ids []uint64) (*Registry, error) {
	chains := make([]Chain, 0, len(ids))
	for _, id := range ids {
		c, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return NewRegistry(chains...), nil
}

// MapOf builds a map keyed by chain id with one value per registered chain.
func MapOf[T any](r *Registry, init func(Chain) T) map[uint64]T {
	m := make(map[uint64]T, len(r.chains))
	for _, c := range r.chains {
		m[c.ID] = init(c)
	}
	return m
}

func (r *Registry) filter(keep func(Chain) bool) []Chain {
	var out []Chain
	for _, c := range r.chains {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// --- chain data ---

func builtinChains() []Chain {
	return []Chain{
		mustChain(1, "ethereum", "Ethereum", false, Currency{"Ether", "ETH"},
			"https://etherscan.io", "https://rpc.ankr.com/eth", "https://ethereum-rpc.publicnode.com"),
		mustChain(11155111, "sepolia", "Sepolia", true, Currency{"Sepolia Ether", "ETH"},
			"https://sepolia.etherscan.io", "https://rpc.sepolia.org", "https://ethereum-sepolia-rpc.publicnode.com"),
		mustChain(56, "bnb", "BNB Smart Chain", false, Currency{"Binance Coin", "BNB"},
			"https://bscscan.com", "https://rpc.ankr.com/bsc", "https://bsc-dataseed.binance.org"),
		mustChain(97, "bnb-testnet", "BNB Smart Chain Testnet", true, Currency{"Binance Coin", "BNB"},
			"https://testnet.bscscan.com", "https://rpc.ankr.com/bsc_testnet_chapel"),
		mustChain(43114, "avalanche", "Avalanche", false, Currency{"Avalanche", "AVAX"},
			"https://snowtrace.io", "https://rpc.ankr.com/avalanche-c", "https://api.avax.network/ext/bc/C/rpc"),
		mustChain(43113, "avalanche-fuji", "Avalanche Fuji Testnet", true, Currency{"Avalanche", "AVAX"},
			"https://testnet.snowtrace.io", "https://api.avax-test.network/ext/bc/C/rpc"),
		mustChain(137, "polygon", "Polygon", false, Currency{"Polygon", "POL"},
			"https://polygonscan.com", "https://rpc.ankr.com/polygon", "https://polygon-rpc.com"),
		mustChain(80002, "polygon-amoy", "Polygon Amoy Testnet", true, Currency{"Polygon", "POL"},
			"https://amoy.polygonscan.com", "https://rpc-amoy.polygon.technology"),
	}
}

func mustChain(id uint64, slug, name string, testnet bool, cur Currency, explorer string, rpcs ...string) Chain {
	c, err := New(id, slug, name, testnet, cur, explorer, rpcs)
	if err != nil {
		panic(err)
	}
	return c
}
