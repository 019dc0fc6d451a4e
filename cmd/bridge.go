package cmd

import (
	"context"
	"sync"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/connector"
	"go.uber.org/zap"
)

// bridgeEnv presents a wallet reachable over JSON-RPC (a desktop wallet
// bridge such as Frame) as the injected ethereum object. The bridge is dialed
// on first lookup, so commands that never touch a browser connector never
// connect to it.
type bridgeEnv struct {
	url   string
	flags []string
	log   *zap.Logger

	once     sync.Once
	remote   *connector.Remote
	injected *connector.Injected
}

func newBridgeEnv(url string, flags []string, log *zap.Logger) *bridgeEnv {
	return &bridgeEnv{url: url, flags: flags, log: log.Named("bridge")}
}

// Global implements connector.Environment.
func (b *bridgeEnv) Global(name string) *connector.Injected {
	if name != "ethereum" || b.url == "" {
		return nil
	}
	b.once.Do(b.dial)
	return b.injected
}

func (b *bridgeEnv) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), config.BridgeDialTimeout)
	defer cancel()
	r, err := connector.DialRemote(ctx, b.url, b.log)
	if err != nil {
		b.log.Debug("wallet bridge unavailable", zap.String("url", b.url), zap.Error(err))
		return
	}
	flags := make(map[string]bool, len(b.flags))
	for _, f := range b.flags {
		flags[f] = true
	}
	b.remote = r
	b.injected = &connector.Injected{Provider: r, Flags: flags}
}

// Close closes the bridge connection if one was made.
func (b *bridgeEnv) Close() {
	if b.remote != nil {
		b.remote.Close()
	}
}
