package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/logging"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/orchestrator"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:          "price-cli",
	Short:        "price-cli scrapes merchant search pages and compares the offers found.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the merchant orchestrator.
// Logs go to stderr so stdout stays readable.
func setup() (*config.Config, *orchestrator.Orchestrator, *metrics.Metrics, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := logging.New(os.Stderr, level, "text")
	slog.SetDefault(logger)

	m := metrics.New()
	orch, err := orchestrator.Build(cfg, orchestrator.Deps{Metrics: m, Logger: logger})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return cfg, orch, m, logger, nil
}
