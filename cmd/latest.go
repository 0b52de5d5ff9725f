package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagLatestFull bool

var latestCmd = &cobra.Command{
	Use:   "latest <user-id>",
	Short: "Show a user's newest moment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		listing, err := a.extractor.Latest(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching latest for user %s: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)

		if !flagLatestFull {
			return enc.Encode(listing)
		}

		bundle, err := a.extractor.Extract(ctx, listing.ID)
		if err != nil {
			return fmt.Errorf("extracting moment %s: %w", listing.ID, err)
		}
		if bundle.Title == "" {
			bundle.Title = listing.Title
		}
		if bundle.Text == "" {
			bundle.Text = listing.Summary
		}
		return enc.Encode(bundle)
	},
}

func init() {
	latestCmd.Flags().BoolVar(&flagLatestFull, "full", false, "Extract the full bundle, not just the listing")
}
