package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/merchant-price-scraper/internal/app"
	"github.com/maltedev/merchant-price-scraper/internal/pricing"
)

var (
	refreshTargets string
	refreshPause   time.Duration
)

func init() {
	refreshCmd.Flags().StringVar(&refreshTargets, "targets", "products.yaml", "YAML file listing the products to refresh.")
	refreshCmd.Flags().DurationVar(&refreshPause, "pause", 0, "Pause between products (defaults to SCRAPER_REFRESH_PAUSE).")
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [--targets <products.yaml>] [--pause <duration>]",
	Short: "Scrapes every listed product and stores its current prices.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, orch, m, logger, err := setup()
		if err != nil {
			return err
		}
		if !cfg.Persistence.Enabled {
			return errors.New("refresh needs PERSISTENCE_ENABLED=true")
		}

		targets, err := pricing.LoadTargets(refreshTargets)
		if err != nil {
			return err
		}

		p, err := app.OpenPersistence(cmd.Context(), cfg, orch, m, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		pause := refreshPause
		if pause <= 0 {
			pause = cfg.Scraper.RefreshPause
		}

		outcomes, err := p.Service.RefreshAll(cmd.Context(), targets, pause)
		for _, o := range outcomes {
			if o.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%q\terror: %v\n", o.Target.ID, o.Target.Query, o.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%q\t%d prices updated, %d errors\n",
				o.Target.ID, o.Target.Query, o.Report.Stats.PricesUpdated, o.Report.Stats.Errors)
		}
		if err != nil {
			return err
		}

		logger.Info("refresh done", "products", len(outcomes))
		return nil
	},
}
