package config

import "time"

// Timeouts used by cmd.
const (
	RPCCallTimeout    = 15 * time.Second // single read through a pool
	BenchTimeout      = 10 * time.Second // rpc bench probes
	ConnectTimeout    = 5 * time.Minute  // waiting for the user to approve a connection
	TxConfirmTimeout  = 3 * time.Minute  // standard transaction confirmation wait
	BridgeDialTimeout = 5 * time.Second  // reaching the local wallet bridge
)

// Defaults.
const (
	DefaultChain          = uint64(1)
	DefaultGasMultiplier  = uint64(2000)
	DefaultConfirmations  = uint64(1)
	DefaultMaxBatchSize   = 100
	DefaultRelayURL       = "wss://relay.walletconnect.com"
	DefaultBridgeURL      = "ws://127.0.0.1:1248"
	DefaultSessionBackend = "file"
	DefaultLogLevel       = "info"
	KeyringService        = "w3link"
)
