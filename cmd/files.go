package cmd

import (
	"fmt"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/huangsam/epss/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// fileSetup loads the output settings needed by commands that only work on
// table files. No store, source or engine is built.
func fileSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}
	output := schema.OutputMode(viper.GetString("output"))
	if _, ok := schema.ValidOutputModes[output]; !ok {
		return fmt.Errorf("invalid output '%s'. must be text, csv, json or jsonl", output)
	}
	cfg.Output = output
	cfg.OutputFile = viper.GetString("output-file")
	return nil
}

// fileSetupWrapper wraps fileSetup for Cobra's PreRunE.
func fileSetupWrapper(_ *cobra.Command, _ []string) error {
	return fileSetup()
}

// tableFlag returns the table kind selected with --table on cmd.
func tableFlag(cmd *cobra.Command) tablefile.Table {
	table, _ := cmd.Flags().GetString("table")
	return tablefile.Table(table)
}

// convertCmd re-encodes a table file.
var convertCmd = &cobra.Command{
	Use:   "convert <input-file> <output-file>",
	Short: "Convert a score or change table to another file format.",
	Long: `Read a table file and write it back in another format. Both formats are
taken from the file extensions: .csv, .csv.gz, .json, .json.gz, .jsonl,
.jsonl.gz or .parquet.

Examples:
  # Turn a downloaded snapshot into parquet
  epss convert epss_scores-2024-01-15.csv.gz 2024-01-15.parquet

  # Export a cached changelog as JSON lines
  epss convert --table changes 2024-01-15.parquet 2024-01-15.jsonl`,
	Args:    cobra.ExactArgs(2),
	PreRunE: fileSetupWrapper,
	Run: func(cmd *cobra.Command, args []string) {
		table := tableFlag(cmd)
		n, err := tablefile.ConvertFile(args[0], args[1], table)
		if err != nil {
			contract.LogFatal("Cannot convert table file", err)
		}
		fmt.Printf("Converted %d %s rows to %s\n", n, table, args[1])
	},
}

// mergeCmd concatenates a directory of table files.
var mergeCmd = &cobra.Command{
	Use:   "merge <input-dir> <output-file>",
	Short: "Merge a directory of score or change tables into one file.",
	Long: `Read every table file directly under a directory, in file name order, and
write all rows to one file. Files with other extensions are ignored. Score
files without a date column take the date in their file name.

Examples:
  # Merge a cache directory of snapshots into one parquet file
  epss merge ~/.epss/raw-scores-by-date scores.parquet

  # Merge per-date changelogs
  epss merge --table changes ~/.epss/changelogs-by-date changes.csv.gz`,
	Args:    cobra.ExactArgs(2),
	PreRunE: fileSetupWrapper,
	Run: func(cmd *cobra.Command, args []string) {
		table := tableFlag(cmd)
		n, err := tablefile.MergeDir(args[0], args[1], table)
		if err != nil {
			contract.LogFatal("Cannot merge table files", err)
		}
		fmt.Printf("Merged %d %s rows into %s\n", n, table, args[1])
	},
}

// datesCmd lists the distinct dates of a table file.
var datesCmd = &cobra.Command{
	Use:   "dates <input-file>",
	Short: "List the dates found in a score or change table.",
	Long: `Print the distinct row dates of a table file in ascending order. Change
tables are dated by the newer date of each pair.

Examples:
  # Dates held by a merged export
  epss dates scores.parquet

  # Dates of a changelog as CSV
  epss dates --table changes --output csv changes.jsonl`,
	Args:    cobra.ExactArgs(1),
	PreRunE: fileSetupWrapper,
	Run: func(cmd *cobra.Command, args []string) {
		dates, err := tablefile.FileDates(args[0], tableFlag(cmd))
		if err != nil {
			contract.LogFatal("Cannot read table file", err)
		}
		if err := ow.WriteDates(dates, cfg); err != nil {
			contract.LogFatal("Cannot write dates", err)
		}
	},
}
