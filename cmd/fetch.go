package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tapfeed/internal/httputil"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <manifest-url> <job-id>",
	Short: "Download an HLS video into the cache",
	Long: `Fetch resolves the manifest, downloads its segments and remuxes them
into {cache-dir}/{job-id}.mp4. A job that already completed is returned
from cache without refetching.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestURL, jobID := args[0], args[1]
		if err := httputil.ValidateURL(manifestURL); err != nil {
			return err
		}
		if err := httputil.ValidateID(jobID); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, false, true, false)
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.downloader.Fetch(ctx, jobID, manifestURL)
		if err != nil {
			return fmt.Errorf("downloading: %w", err)
		}
		fmt.Println(path)
		return nil
	},
}
