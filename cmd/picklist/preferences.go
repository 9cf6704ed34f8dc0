package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"picklist/internal/preference"
	"picklist/internal/storage"
)

var (
	ovUser       string
	ovItem       string
	ovProduct    int
	ovSupplier   int
	ovSupplierNm string
	cleanupDays  int
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Record a manual product or supplier choice for an order item",
	Long: `Record a manual product or supplier choice for an order item.

Examples:
  # Learn that "red polish" means product 7 for this user
  picklist override --user salon-7 --item "red polish" --product 7

  # Prefer a supplier for the item whatever product it resolves to
  picklist override --item "red polish" --supplier-name "Nail Supply Co"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		o := preference.Override{UserID: ovUser, OriginalItem: ovItem, SupplierName: ovSupplierNm}
		if ovProduct > 0 {
			o.ProductID = &ovProduct
		}
		if ovSupplier > 0 {
			o.SupplierID = &ovSupplier
		}

		learner := preference.NewLearner(db, db, cfg.StoreTimeout(), logger.Named("preference"))
		res, err := learner.RecordOverride(cmd.Context(), o)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale one-off preferences",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		days := cleanupDays
		if days <= 0 {
			days = cfg.PreferenceRetentionDays
		}
		learner := preference.NewLearner(db, db, cfg.StoreTimeout(), logger.Named("preference"))
		removed, err := learner.Cleanup(cmd.Context(), days)
		if err != nil {
			return err
		}
		cmd.Printf("removed %d preferences\n", removed)
		return nil
	},
}

func init() {
	overrideCmd.Flags().StringVar(&ovUser, "user", "", "user id (needed for product choices)")
	overrideCmd.Flags().StringVar(&ovItem, "item", "", "original order item text (required)")
	overrideCmd.Flags().IntVar(&ovProduct, "product", 0, "chosen product id")
	overrideCmd.Flags().IntVar(&ovSupplier, "supplier", 0, "chosen supplier id")
	overrideCmd.Flags().StringVar(&ovSupplierNm, "supplier-name", "", "chosen supplier name")
	_ = overrideCmd.MarkFlagRequired("item")

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention window in days (default PREFERENCE_RETENTION_DAYS)")
}
