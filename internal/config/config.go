package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
)

const (
	configFile = "config.json"
	stateFile  = "state.json"
)

// ErrUnknownKey is returned by Set for keys it does not know.
var ErrUnknownKey = errors.New("unknown config key")

// DefaultDir returns ~/.w3link.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home dir: %w", err)
	}
	return filepath.Join(home, ".w3link"), nil
}

// Load reads config from dir (or creates defaults). dir defaults to ~/.w3link.
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg, err := loadJSON(filepath.Join(dir, configFile), defaults(dir))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg.configDir = dir
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filepath.Join(dir, configFile), err)
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// StatePath is the file holding the persisted wallet session when the file
// backend is used.
func (c *Config) StatePath() string {
	return filepath.Join(c.configDir, stateFile)
}

// Validate checks values that cannot be enforced by the JSON types.
func (c *Config) Validate() error {
	if _, err := rpc.ParseLimiterMode(c.Limiter.Mode); err != nil {
		return err
	}
	if c.Limiter.Mode != "" && c.Limiter.Mode != string(rpc.LimiterNone) &&
		(c.Limiter.RequestsPerInterval <= 0 || c.Limiter.IntervalMS <= 0) {
		return fmt.Errorf("limiter mode %s needs positive requests_per_interval and interval_ms", c.Limiter.Mode)
	}
	if c.GasMultiplier == 0 {
		return errors.New("gas_multiplier must be positive")
	}
	if c.MaxBatchSize < 0 {
		return errors.New("max_batch_size must not be negative")
	}
	switch c.SessionBackend {
	case "file", "keyring":
	default:
		return fmt.Errorf("session_backend %q: want file or keyring", c.SessionBackend)
	}
	if len(c.Chains) > 0 && !slices.Contains(c.Chains, c.DefaultChain) {
		return fmt.Errorf("default_chain %d is not in chains", c.DefaultChain)
	}
	return nil
}

// AddRPC adds a custom RPC URL for a chain.
func (c *Config) AddRPC(chainID uint64, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	key := strconv.FormatUint(chainID, 10)
	if slices.Contains(c.CustomRPCs[key], url) {
		return fmt.Errorf("RPC %s already exists for chain %d", url, chainID)
	}
	c.CustomRPCs[key] = append(c.CustomRPCs[key], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a chain.
func (c *Config) RemoveRPC(chainID uint64, url string) error {
	key := strconv.FormatUint(chainID, 10)
	rpcs := c.CustomRPCs[key]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for chain %d", url, chainID)
	}
	c.CustomRPCs[key] = slices.Delete(rpcs, idx, idx+1)
	if len(c.CustomRPCs[key]) == 0 {
		delete(c.CustomRPCs, key)
	}
	return nil
}

// GetRPCs returns custom RPCs for a chain.
func (c *Config) GetRPCs(chainID uint64) []string {
	return c.CustomRPCs[strconv.FormatUint(chainID, 10)]
}

// Registry applies custom RPCs and the chain selection to base. The default
// chain comes first.
func (c *Config) Registry(base *chain.Registry) (*chain.Registry, error) {
	overrides := make(map[uint64][]string, len(c.CustomRPCs))
	for key, urls := range c.CustomRPCs {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("custom_rpcs key %q: %w", key, chain.ErrInvalidChainConfig)
		}
		overrides[id] = urls
	}
	reg, err := base.Override(overrides)
	if err != nil {
		return nil, err
	}

	ids := c.Chains
	if len(ids) == 0 {
		ids = reg.IDs()
	}
	ordered := []uint64{c.DefaultChain}
	for _, id := range ids {
		if id != c.DefaultChain {
			ordered = append(ordered, id)
		}
	}
	if !reg.Has(c.DefaultChain) {
		ordered = ordered[1:]
	}
	return reg.Subset(ordered)
}

// setters maps dotted keys to their parsers.
var setters = map[string]func(c *Config, v string) error{
	"default_chain": func(c *Config, v string) (err error) {
		c.DefaultChain, err = parseChainID(v)
		return err
	},
	"chains": func(c *Config, v string) error {
		c.Chains = nil
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := parseChainID(part)
			if err != nil {
				return err
			}
			c.Chains = append(c.Chains, id)
		}
		return nil
	},
	"gas_multiplier": func(c *Config, v string) (err error) {
		c.GasMultiplier, err = strconv.ParseUint(v, 10, 64)
		return err
	},
	"confirmations": func(c *Config, v string) (err error) {
		c.Confirmations, err = strconv.ParseUint(v, 10, 64)
		return err
	},
	"max_batch_size": func(c *Config, v string) (err error) {
		c.MaxBatchSize, err = strconv.Atoi(v)
		return err
	},
	"limiter.mode": func(c *Config, v string) error {
		c.Limiter.Mode = v
		return nil
	},
	"limiter.requests_per_interval": func(c *Config, v string) (err error) {
		c.Limiter.RequestsPerInterval, err = strconv.Atoi(v)
		return err
	},
	"limiter.interval_ms": func(c *Config, v string) (err error) {
		c.Limiter.IntervalMS, err = strconv.Atoi(v)
		return err
	},
	"relay.url":        func(c *Config, v string) error { c.Relay.URL = v; return nil },
	"relay.project_id": func(c *Config, v string) error { c.Relay.ProjectID = v; return nil },
	"relay.name":       func(c *Config, v string) error { c.Relay.Name = v; return nil },
	"relay.url_meta":   func(c *Config, v string) error { c.Relay.URLMeta = v; return nil },
	"bridge.url":       func(c *Config, v string) error { c.Bridge.URL = v; return nil },
	"bridge.flags": func(c *Config, v string) error {
		c.Bridge.Flags = nil
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				c.Bridge.Flags = append(c.Bridge.Flags, f)
			}
		}
		return nil
	},
	"default_key":     func(c *Config, v string) error { c.DefaultKey = v; return nil },
	"session_backend": func(c *Config, v string) error { c.SessionBackend = v; return nil },
	"log_level":       func(c *Config, v string) error { c.LogLevel = v; return nil },
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value into key. The config is left unchanged when the result
// does not validate.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w %q (known: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	next := *c
	next.Chains = slices.Clone(c.Chains)
	next.Bridge.Flags = slices.Clone(c.Bridge.Flags)
	if err := set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// --- helpers ---

func parseChainID(v string) (uint64, error) {
	id, err := chain.DecodeID(v)
	if err != nil {
		return 0, fmt.Errorf("chain id %q: %w", v, err)
	}
	return id, nil
}

func defaults(dir string) *Config {
	return &Config{
		DefaultChain:   DefaultChain,
		CustomRPCs:     make(map[string][]string),
		Limiter:        Limiter{Mode: string(rpc.LimiterNone)},
		MaxBatchSize:   DefaultMaxBatchSize,
		GasMultiplier:  DefaultGasMultiplier,
		Confirmations:  DefaultConfirmations,
		Relay:          Relay{URL: DefaultRelayURL, Name: "w3link"},
		Bridge:         Bridge{URL: DefaultBridgeURL},
		SessionBackend: DefaultSessionBackend,
		LogLevel:       DefaultLogLevel,
		configDir:      dir,
	}
}

func loadJSON[T any](path string, into *T) (*T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return into, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return nil, err
	}
	return into, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
