package cmd

import (
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scoresCmd prints the snapshot of one date.
var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Show the scores published on a date.",
	Long: `Print the snapshot of one date, fetching it when it is not cached yet.

Rows are sorted by CVE. The query flags narrow the output. A --date outside
the published range is rejected.

Examples:
  # Latest scores of one CVE
  epss scores --cve CVE-2024-3400

  # CVEs scoring at least 0.9 on a given date
  epss scores --date 2024-01-15 --min-epss 0.9 --limit 20`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		start := time.Now()
		scores, err := engine.Scores(rootCtx, cfg.MinDate, cfg.Query)
		if err != nil {
			contract.LogFatal("Cannot load scores", err)
		}
		if limit := viper.GetInt("limit"); limit > 0 && limit < len(scores) {
			scores = scores[:limit]
		}
		if err := ow.WriteScores(scores, cfg, time.Since(start)); err != nil {
			contract.LogFatal("Cannot write scores", err)
		}
	},
}

// rangeCmd prints per-CVE score ranges.
var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Show the lowest and highest score of each CVE over a range.",
	Long: `Summarize the changelog over the range per CVE: the lowest and highest
EPSS score and percentile seen, and how many changes were recorded.

Only CVEs with at least one change in the range are listed.

Examples:
  # Range of one CVE over the first quarter
  epss range --cve CVE-2024-3400 --min-date 2024-01-01 --max-date 2024-03-31

  # Every CVE that reached the top percentile band
  epss range --min-percentile 0.99 --output csv`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		start := time.Now()
		ranges, err := engine.ScoreRanges(rootCtx)
		if err != nil {
			contract.LogFatal("Cannot summarize score ranges", err)
		}
		if err := ow.WriteRanges(ranges, cfg, time.Since(start)); err != nil {
			contract.LogFatal("Cannot write score ranges", err)
		}
	},
}

// dateRangeCmd prints the valid range of the configured era, or the row date
// range of a table file.
var dateRangeCmd = &cobra.Command{
	Use:   "date-range",
	Short: "Show the first and latest dates with published scores.",
	Long: `Print the valid date range of the configured model era: from the release
of the oldest requested model to the latest date the publisher has released.

With --input-file, print the first and last row date of a table file instead.

Examples:
  # Range of the default v3 era
  epss date-range

  # Range when v1 scores are included
  epss date-range --include-v1

  # Dates covered by a merged export
  epss date-range --input-file scores.parquet`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if inputFile, _ := cmd.Flags().GetString("input-file"); inputFile != "" {
			return fileSetup()
		}
		return sharedSetup(rootCtx, cmd, args)
	},
	Run: func(cmd *cobra.Command, _ []string) {
		if inputFile, _ := cmd.Flags().GetString("input-file"); inputFile != "" {
			dates, err := tablefile.FileDates(inputFile, tableFlag(cmd))
			if err != nil {
				contract.LogFatal("Cannot read table file", err)
			}
			if err := ow.WriteFileDateRange(inputFile, dates, cfg); err != nil {
				contract.LogFatal("Cannot write date range", err)
			}
			return
		}

		lo, hi, err := engine.DateRange(rootCtx)
		if err != nil {
			contract.LogFatal("Cannot resolve date range", err)
		}
		if err := ow.WriteDateRange(lo, hi, cfg); err != nil {
			contract.LogFatal("Cannot write date range", err)
		}
	},
}
