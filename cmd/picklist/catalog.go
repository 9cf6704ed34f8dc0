package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"picklist/internal/catalog"
	"picklist/internal/storage"
)

var (
	syncPricesOnly bool
	syncHours      int
	importFile     string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain the local product, supplier and price catalog",
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the catalog from the price feed",
	Long: `Pull products, suppliers and prices from the price feed into the local database.

Examples:
  # Full sync
  picklist catalog sync

  # Only prices changed in the last 6 hours
  picklist catalog sync --prices-only --hours 6`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := catalog.NewSyncService(db, catalog.NewClient(cfg, logger.Named("feed")), logger.Named("sync"))
		var res catalog.SyncResult
		if syncPricesOnly {
			res, err = svc.SyncPrices(cmd.Context(), syncHours)
		} else {
			res, err = svc.Sync(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Printf("catalog sync done products=%d suppliers=%d offers=%d\n", res.Products, res.Suppliers, res.Offers)
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a supplier price list from an XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := catalog.ImportXLSX(cmd.Context(), db, importFile)
		if err != nil {
			return err
		}
		fmt.Printf("price list imported rows=%d offers=%d skipped=%d\n", res.Rows, res.Offers, res.Skipped)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogSyncCmd, catalogImportCmd)

	catalogSyncCmd.Flags().BoolVar(&syncPricesOnly, "prices-only", false, "only refresh prices")
	catalogSyncCmd.Flags().IntVar(&syncHours, "hours", 24, "price lookback window for --prices-only")

	catalogImportCmd.Flags().StringVar(&importFile, "file", "", "XLSX price list (required)")
	_ = catalogImportCmd.MarkFlagRequired("file")
}
