package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/logging"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3link/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir      string
	cfg         *config.Config
	logger      = zap.NewNop()
	metrics     *rpc.Metrics
	verbose     bool
	chainFlag   string
	metricsAddr string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3link",
	Short: "Connect wallets and talk to EVM chains",
	Long: `w3link connects to a wallet (a desktop wallet bridge, a relay-paired
mobile wallet or a local key), keeps the session between runs, and sends
transactions through rate-limited RPC pools.

--chain accepts a slug (bnb-testnet), a decimal id (97) or a hex id (0x61).
Without it the configured default chain is used.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config (skip for commands that don't need it).
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		if logger, err = logging.New(level, verbose); err != nil {
			return err
		}

		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			if metrics, err = rpc.NewMetrics(reg); err != nil {
				return fmt.Errorf("registering metrics: %w", err)
			}
			serveMetrics(metricsAddr, reg)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// serveMetrics exposes reg on addr for the lifetime of the process.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Debug("serving metrics", zap.String("addr", addr))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, explain(err))
		os.Exit(1)
	}
}

func init() {
	// W3LINK_CONFIG_DIR env var overrides --config flag.
	if envDir := os.Getenv("W3LINK_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.w3link)")
	rootCmd.PersistentFlags().StringVar(&chainFlag, "chain", "", "chain slug or id (default: configured default chain)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")

	// Register all sub-commands.
	rootCmd.AddCommand(
		chainsCmd,
		rpcCmd,
		ensCmd,
		keyCmd,
		walletCmd,
		sendCmd,
		configCmd,
	)
}
