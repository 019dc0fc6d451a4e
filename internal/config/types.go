package config

import "time"

// Config holds all w3link configuration.
type Config struct {
	DefaultChain   uint64              `json:"default_chain"`
	Chains         []uint64            `json:"chains"` // empty means every built-in chain
	CustomRPCs     map[string][]string `json:"custom_rpcs"`
	Limiter        Limiter             `json:"limiter"`
	MaxBatchSize   int                 `json:"max_batch_size"`
	GasMultiplier  uint64              `json:"gas_multiplier"` // thousandths
	Confirmations  uint64              `json:"confirmations"`
	Relay          Relay               `json:"relay"`
	Bridge         Bridge              `json:"bridge"`
	DefaultKey     string              `json:"default_key"`
	SessionBackend string              `json:"session_backend"` // "file" | "keyring"
	LogLevel       string              `json:"log_level"`

	// internal: config dir path used for Save()
	configDir string
}

// Limiter is the rate limit applied to RPC endpoints.
type Limiter struct {
	RequestsPerInterval int    `json:"requests_per_interval"`
	IntervalMS          int    `json:"interval_ms"`
	Mode                string `json:"mode"` // "shared" (or empty) | "private" | "none"
}

// Interval returns the refill window.
func (l Limiter) Interval() time.Duration {
	return time.Duration(l.IntervalMS) * time.Millisecond
}

// Enabled reports whether a limit is configured.
func (l Limiter) Enabled() bool {
	return l.Mode != "none" && l.RequestsPerInterval > 0
}

// Relay configures the relay connector.
type Relay struct {
	URL       string `json:"url"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	URLMeta   string `json:"url_meta"`
}

// Bridge points the injected-wallet connectors at a desktop wallet bridge.
type Bridge struct {
	URL   string   `json:"url"`
	Flags []string `json:"flags"` // vendor flags the bridged wallet reports, e.g. isMetaMask
}
