package connector

import (
	"context"

	"github.com/Mohsinsiddi/w3link/internal/eip1193"
)

// Lookup finds a vendor provider in an environment. It returns nil when the
// vendor is not installed.
type Lookup func(env Environment) eip1193.Provider

// Browser is a connector for a provider injected by the host. Vendors differ
// only in their Lookup.
type Browser struct {
	id, name string
	lookup   Lookup
	env      Environment
	neg      *Negotiator
}

// NewBrowser returns a connector that finds its provider with lookup.
func NewBrowser(id, name string, lookup Lookup, env Environment, neg *Negotiator) *Browser {
	return &Browser{id: id, name: name, lookup: lookup, env: env, neg: neg}
}

func (b *Browser) ID() string   { return b.id }
func (b *Browser) Name() string { return b.name }

// Provider implements Connector.
func (b *Browser) Provider(context.Context) (eip1193.Provider, error) {
	if b.env == nil {
		return nil, eip1193.ErrProviderUnavailable
	}
	p := b.lookup(b.env)
	if p == nil {
		return nil, eip1193.ErrProviderUnavailable
	}
	return p, nil
}

// SetChain implements Connector.
func (b *Browser) SetChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	return b.neg.Switch(ctx, p, id)
}

// AddChain implements Connector.
func (b *Browser) AddChain(ctx context.Context, p eip1193.Provider, id uint64) error {
	return b.neg.Add(ctx, p, id)
}

// Browsers returns every injected-wallet connector.
func Browsers(env Environment, neg *Negotiator) []Connector {
	return []Connector{
		NewBrowser(IDBrowser, "Browser Wallet", LookupDefault, env, neg),
		NewBrowser(IDMetaMask, "MetaMask", LookupFlag("isMetaMask"), env, neg),
		NewBrowser(IDTrust, "Trust Wallet", LookupFlagOr("isTrust", globalLookup("trustwallet")), env, neg),
		NewBrowser(IDCoinbase, "Coinbase Wallet", LookupFlag("isCoinbaseWallet"), env, neg),
		NewBrowser(IDBitget, "Bitget Wallet", LookupFlagOr("isBitKeep", func(env Environment) eip1193.Provider {
			return env.Global("bitkeep").Child("ethereum").provider()
		}), env, neg),
		NewBrowser(IDSafePal, "SafePal Wallet", LookupFlag("isSafePal"), env, neg),
		NewBrowser(IDBinance, "Binance Wallet", globalLookup("BinanceChain"), env, neg),
	}
}

// LookupDefault returns the first of several injected providers, or the
// ethereum global itself.
func LookupDefault(env Environment) eip1193.Provider {
	eth := env.Global("ethereum")
	if eth != nil && eth.Providers != nil {
		if len(eth.Providers) == 0 {
			return nil
		}
		return eth.Providers[0].provider()
	}
	return eth.provider()
}

// LookupFlag finds the provider carrying a vendor flag. When several wallets
// are injected only the providers list is searched.
func LookupFlag(flag string) Lookup {
	return LookupFlagOr(flag, nil)
}

// LookupFlagOr is LookupFlag with a fallback used when ethereum is not the
// flagged vendor and no providers list exists.
func LookupFlagOr(flag string, fallback Lookup) Lookup {
	return func(env Environment) eip1193.Provider {
		eth := env.Global("ethereum")
		if eth != nil && eth.Providers != nil {
			for _, p := range eth.Providers {
				if p.Flag(flag) {
					return p.provider()
				}
			}
			return nil
		}
		if eth.Flag(flag) {
			return eth.provider()
		}
		if fallback != nil {
			return fallback(env)
		}
		return nil
	}
}

func globalLookup(name string) Lookup {
	return func(env Environment) eip1193.Provider {
		return env.Global(name).provider()
	}
}
