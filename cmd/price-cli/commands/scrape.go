package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/merchant-price-scraper/internal/compare"
	"github.com/maltedev/merchant-price-scraper/internal/models"
	"github.com/maltedev/merchant-price-scraper/internal/storage"
)

var (
	scrapeMerchant string
	scrapeSave     string
)

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeMerchant, "merchant", "m", "all", "Merchant to scrape: all, amazon, ldlc or materielnet.")
	scrapeCmd.Flags().StringVar(&scrapeSave, "save", "", "JSON file to merge the scraped offers into.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <query> [--merchant <id>] [--save <offers.json>]",
	Short: "Searches the merchants for a product and prints the cheapest offer.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		_, orch, _, logger, err := setup()
		if err != nil {
			return err
		}

		t1 := time.Now()
		var results []models.ScraperResult
		if scrapeMerchant == "all" {
			results = orch.ScrapeAll(cmd.Context(), query)
		} else {
			result, err := orch.ScrapeOne(cmd.Context(), models.MerchantID(strings.ToLower(scrapeMerchant)), query)
			if err != nil {
				return err
			}
			results = []models.ScraperResult{result}
		}
		logger.Info("scraping time", "seconds", time.Since(t1).Seconds())

		printResults(cmd.OutOrStdout(), results)

		if scrapeSave != "" {
			store, err := storage.NewOfferStorage(scrapeSave)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", scrapeSave, err)
			}
			saved, err := store.AddResults(query, results)
			if err != nil {
				return fmt.Errorf("failed to save offers: %w", err)
			}
			logger.Info("offers saved", "file", scrapeSave, "new_or_updated", saved, "total", store.GetStats()["total"])
		}

		return nil
	},
}

func printResults(w io.Writer, results []models.ScraperResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MERCHANT\tPRICE\tSHIPPING\tSTOCK\tNAME")
	for _, r := range results {
		if !r.Success {
			fmt.Fprintf(tw, "%s\t-\t-\t-\tfailed: %s\n", r.Merchant, strings.Join(r.Errors, "; "))
			continue
		}
		for _, offer := range r.Products {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%s\t%s\n",
				offer.Merchant, offer.Price, offer.Shipping, offer.Availability, offer.Name)
		}
	}
	tw.Flush()

	offers := compare.Flatten(results)
	stats := compare.Summarize(results)
	fmt.Fprintf(w, "\n%d offers from %d merchants (%d failed)\n",
		stats.TotalProducts, stats.MerchantsScraped, stats.MerchantsFailed)

	best, ok := compare.BestOffer(offers)
	if !ok {
		fmt.Fprintln(w, "no offers found")
		return
	}
	fmt.Fprintf(w, "best: %s at %s for %.2f %s (%s)\n",
		best.Name, best.Merchant, compare.Total(best), best.Currency, best.LinkURL())
	fmt.Fprintf(w, "savings vs most expensive: %.2f\n", compare.Savings(offers))
}
