package cmd

import (
	"fmt"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initCmd materializes the cache for a date range.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Download snapshots and build changelogs for a date range.",
	Long: `Fill the cache with every published snapshot in the range, then build the
changelog between each pair of consecutive dates.

Dates the publisher never released are reported and skipped. Snapshots and
changelogs already in the cache are reused, so re-running init only fetches
what is missing.

Optionally writes partitions of the changelog:
- cve:  one file per CVE under changelogs-by-cve
- date: one file per date under changelogs-by-date

Examples:
  # Cache the whole v3 era up to the latest published date
  epss init

  # Cache one month and partition the changelog by CVE
  epss init --min-date 2024-01-01 --max-date 2024-01-31 --partition-by cve

  # Rebuild partitions that were written before
  epss init --partition-by cve,date --overwrite`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		start := time.Now()
		report, err := engine.Init(rootCtx)
		if err != nil {
			contract.LogFatal("Cannot initialize cache", err)
		}
		if err := ow.WriteInit(report, cfg, time.Since(start)); err != nil {
			contract.LogFatal("Cannot write init report", err)
		}
	},
}

// clearCmd removes cached blobs by kind.
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached snapshots, changelogs or partitions.",
	Long: `Delete cached entries from the configured backend by kind.

Without flags every kind is removed. By-date partitions share the changelog
directory, so --changelogs removes them too.

Examples:
  # Remove everything
  epss clear

  # Keep the snapshots but rebuild changelogs on the next run
  epss clear --changelogs --partitions`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		snapshots := viper.GetBool("snapshots")
		changelogs := viper.GetBool("changelogs")
		partitions := viper.GetBool("partitions")
		if !snapshots && !changelogs && !partitions {
			snapshots, changelogs, partitions = true, true, true
		}

		removed, err := engine.Clear(rootCtx, snapshots, changelogs, partitions)
		if err != nil {
			contract.LogFatal("Cannot clear cache", err)
		}
		if err := ow.WriteClear(removed, cfg); err != nil {
			contract.LogFatal("Cannot write clear result", err)
		}
	},
}

// diffCmd compares two snapshots directly.
var diffCmd = &cobra.Command{
	Use:   "diff <older-date> <newer-date>",
	Short: "Compare the scores of two dates.",
	Long: `Compare the snapshots of two dates directly, without chaining through the
dates in between. Only CVEs present on both dates whose EPSS score changed
are listed. A percentile move alone is not a change.

Examples:
  # Score movements over one week
  epss diff 2024-01-01 2024-01-08

  # Changed CVEs that are now in the top decile
  epss diff 2024-01-01 2024-01-08 --min-percentile 0.9`,
	Args:    cobra.ExactArgs(2),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		older, newer, err := parseDatePair(args)
		if err != nil {
			contract.LogFatal("Invalid diff arguments", err)
		}

		start := time.Now()
		records, err := engine.DiffDates(rootCtx, older, newer, cfg.Query)
		if err != nil {
			contract.LogFatal("Cannot diff snapshots", err)
		}
		if err := ow.WriteChanges(records, cfg, time.Since(start)); err != nil {
			contract.LogFatal("Cannot write diff", err)
		}
	},
}

// changelogCmd prints the chained changelog over a range.
var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Show score changes between consecutive published dates.",
	Long: `Build the changelog over the range: every CVE whose EPSS score changed
between two consecutive published dates, one row per change. A percentile
move alone is not listed.

Examples:
  # Every score change last week
  epss changelog --min-date 2024-01-01 --max-date 2024-01-07

  # History of two CVEs in date order
  epss changelog --cve CVE-2024-3400,CVE-2023-4966 --preserve-order

  # Export as JSON lines
  epss changelog --min-date 2024-01-01 --output jsonl --output-file changes.jsonl`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		start := time.Now()
		records, err := engine.Changelog(rootCtx)
		if err != nil {
			contract.LogFatal("Cannot build changelog", err)
		}
		if err := ow.WriteChanges(records, cfg, time.Since(start)); err != nil {
			contract.LogFatal("Cannot write changelog", err)
		}
	},
}

// parseDatePair parses two positional dates in order.
func parseDatePair(args []string) (time.Time, time.Time, error) {
	older, err := schema.ParseDate(args[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid older date: %w", err)
	}
	newer, err := schema.ParseDate(args[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid newer date: %w", err)
	}
	return older, newer, nil
}
