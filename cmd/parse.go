package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <moment-id>",
	Short: "Extract one moment into a content bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		bundle, err := a.extractor.Extract(ctx, args[0])
		if err != nil {
			return fmt.Errorf("extracting moment %s: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(bundle)
	},
}
