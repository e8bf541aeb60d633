package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/ingest"
)

// errNoSourceSucceeded is returned when a one-shot run saves nothing anywhere.
var errNoSourceSucceeded = errors.New("no source crawled successfully")

func newCrawlCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl and prints the summary",
		Long: `Crawls every source (or the one named by --mode) sequentially and
writes the run summary as JSON to stdout. The exit status is non-zero when
no source succeeded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close(cmd.Context())

			summary, err := appInstance.Crawl(cmd.Context(), mode)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			appInstance.Logger().Info("crawl command finished",
				zap.String("mode", summary.Mode),
				zap.Int("saved", summary.Summary.TotalSaved),
			)
			if !summary.Success {
				return errNoSourceSucceeded
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", ingest.ModeAll, `source to crawl, or "all"`)
	return cmd
}
