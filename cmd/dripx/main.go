package main

import (
	"os"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dialLedger builds the ledger dialer; tests swap it
var dialLedger = services.NewSolanaDialer

type globalOptions struct {
	configPath string
	endpoints  []string
	timeout    time.Duration
	verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.GetLogger().Debug("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "dripx",
		Short:   "Request devnet airdrops from the command line",
		Version: logger.Version,
		Long: `dripx drives the faucet core without the HTTP server: it probes the
configured RPC endpoints, reads balances and requests airdrops.

Configuration is read from ENV (SOLANA_RPC_ENDPOINTS, FAUCET_MAX_AMOUNT, ...);
flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			return logger.Initialize(&logger.Config{Level: level, Environment: "development", OutputPaths: []string{"stderr"}})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default from DRIPX_CONFIG)")
	flags.StringSliceVar(&opts.endpoints, "rpc", nil, "RPC endpoints in priority order (default from SOLANA_RPC_ENDPOINTS)")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall deadline of the command")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newProbeCommand(opts),
		newBalanceCommand(opts),
		newAirdropCommand(opts),
	)
	return root
}

// loadConfig reads the config file and ENV, then applies the global flags
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if len(o.endpoints) > 0 {
		cfg.RPC.Endpoints = o.endpoints
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSelector(cfg *config.Config) *services.Selector {
	var opts []services.SelectorOption
	if cfg.RPC.StickyTTL > 0 {
		opts = append(opts, services.WithStickyTTL(cfg.RPC.StickyTTL))
	}
	return services.NewSelector(
		models.EndpointsFromAddresses(cfg.RPC.Endpoints),
		dialLedger(&cfg.RPC),
		cfg.RPC.ProbeTimeout,
		opts...,
	)
}
