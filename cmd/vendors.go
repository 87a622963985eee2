package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/store"
)

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Inspect and seed the vendor register",
	Long:  "Commands for listing registered vendors and seeding a fresh install with sample vendors.",
}

// -- vendors list --

var vendorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered vendors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.VendorFilter{Limit: limit}
		if !all {
			filter.Status = model.VendorActive
		}

		vendors, err := st.ListVendors(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "vendors list")
		}

		if len(vendors) == 0 {
			fmt.Fprintln(os.Stderr, "No vendors found. Run 'pricewatch vendors seed' to load sample vendors.")
			return nil
		}

		formatVendorList(os.Stdout, vendors)
		return nil
	},
}

// -- vendors seed --

var vendorsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample vendor register",
	Long:  "Loads five sample vendors so a fresh install can process the example message drops. Existing vendors with the same IDs are overwritten.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.UpsertVendors(ctx, sampleVendors())
		if err != nil {
			return eris.Wrap(err, "seed vendors")
		}

		zap.L().Info("sample vendors seeded", zap.Int("count", n))
		fmt.Fprintf(os.Stdout, "Seeded %d vendors.\n", n)
		return nil
	},
}

func init() {
	vendorsListCmd.Flags().Bool("all", false, "include inactive vendors")
	vendorsListCmd.Flags().Int("limit", 100, "max number of vendors to display")

	vendorsCmd.AddCommand(vendorsListCmd)
	vendorsCmd.AddCommand(vendorsSeedCmd)
	rootCmd.AddCommand(vendorsCmd)
}

// sampleVendors is the starter register for a fresh install.
func sampleVendors() []model.Vendor {
	return []model.Vendor{
		{VendorID: "VND001", Name: "ABC Solar Traders", ContactHandle: "+923001234567", Type: "Importer", Status: model.VendorActive},
		{VendorID: "VND002", Name: "XYZ Energy Hub", ContactHandle: "+923219876543", Type: "Trader", Status: model.VendorActive},
		{VendorID: "VND003", Name: "Solar Solutions", ContactHandle: "+923335555555", Type: "Importer", Status: model.VendorActive},
		{VendorID: "VND004", Name: "Green Power Tech", ContactHandle: "+923457777777", Type: "Trader", Status: model.VendorActive},
		{VendorID: "VND005", Name: "Power Systems Pak", ContactHandle: "+923123333333", Type: "Importer", Status: model.VendorActive},
	}
}

// formatVendorList writes a tabular list of vendors to w.
func formatVendorList(out io.Writer, vendors []model.Vendor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tHANDLE\tTYPE\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t----\t------\t-------")

	for _, v := range vendors {
		created := ""
		if !v.CreatedAt.IsZero() {
			created = v.CreatedAt.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.VendorID,
			v.Name,
			v.ContactHandle,
			v.Type,
			v.Status,
			created,
		)
	}
	_ = w.Flush()
}
