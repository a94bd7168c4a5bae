// Package cmd defines the command-line interface for epss.
package cmd

import (
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/huangsam/epss/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(dateRangeCmd)
	rootCmd.AddCommand(rangeCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(datesCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("workdir", "", "Cache root directory (default $HOME/.epss)")
	rootCmd.PersistentFlags().String("format", string(schema.DefaultFileFormat), "Cache file format: csv or csv.gz or json or json.gz or jsonl or jsonl.gz or parquet")
	rootCmd.PersistentFlags().String("model-version", string(schema.DefaultModelVersion), "EPSS model era: v1 or v2 or v3 or v4")
	rootCmd.PersistentFlags().Bool("include-v1", false, "Start the valid range at the v1 release")
	rootCmd.PersistentFlags().Bool("include-v2", false, "Start the valid range at the v2 release")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or jsonl")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored deltas in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.DefaultCacheBackend), "Cache backend: filesystem or sqlite or mysql or postgresql or redis or badger or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Connection string for mysql/postgresql/redis (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("source-url", schema.DefaultSourceBaseURL, "Base URL of the published score files")
	rootCmd.PersistentFlags().Bool("insecure", false, "Skip TLS certificate verification against the score source")
	rootCmd.PersistentFlags().Float64("rate-limit", contract.DefaultRateLimit, "Maximum requests per second against the score source (0 = unlimited)")
	rootCmd.PersistentFlags().String("timeout", contract.DefaultHTTPTimeout.String(), "Timeout of one score file download")
	rootCmd.PersistentFlags().String("log-level", contract.DefaultLogLevel, "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().String("trace-file", "", "Write OpenTelemetry spans to this file as JSON")
	rootCmd.PersistentFlags().String("min-date", "", "First date of the range (YYYY-MM-DD)")
	rootCmd.PersistentFlags().String("max-date", "", "Last date of the range (YYYY-MM-DD)")
	rootCmd.PersistentFlags().String("cve", "", "Comma-separated list of CVE identifiers to keep")
	rootCmd.PersistentFlags().String("min-epss", "", "Inclusive lower bound on the EPSS score")
	rootCmd.PersistentFlags().String("max-epss", "", "Inclusive upper bound on the EPSS score")
	rootCmd.PersistentFlags().String("min-percentile", "", "Inclusive lower bound on the percentile")
	rootCmd.PersistentFlags().String("max-percentile", "", "Inclusive upper bound on the percentile")
	rootCmd.PersistentFlags().Bool("preserve-order", false, "Keep changelog rows in date order")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of initCmd to Viper
	initCmd.Flags().String("partition-by", "", "Comma-separated partition keys to write: cve, date")
	initCmd.Flags().Bool("overwrite", false, "Rewrite partition files that already exist")
	if err := viper.BindPFlags(initCmd.Flags()); err != nil {
		contract.LogFatal("Error binding init flags", err)
	}

	// Bind all flags of clearCmd to Viper
	clearCmd.Flags().Bool("snapshots", false, "Remove cached daily snapshots")
	clearCmd.Flags().Bool("changelogs", false, "Remove cached per-date changelogs")
	clearCmd.Flags().Bool("partitions", false, "Remove per-CVE changelog partitions")
	if err := viper.BindPFlags(clearCmd.Flags()); err != nil {
		contract.LogFatal("Error binding clear flags", err)
	}

	// Bind all flags of scoresCmd to Viper
	scoresCmd.Flags().String("date", "", "Publication date (YYYY-MM-DD); defaults to the latest")
	scoresCmd.Flags().Int("limit", 0, "Number of results to display (0 = all)")
	if err := viper.BindPFlags(scoresCmd.Flags()); err != nil {
		contract.LogFatal("Error binding scores flags", err)
	}

	// The table file commands read their flags directly
	for _, c := range []*cobra.Command{convertCmd, mergeCmd, datesCmd, dateRangeCmd} {
		c.Flags().String("table", string(tablefile.ScoresTable), "Table kind held by the file: scores or changes")
	}
	dateRangeCmd.Flags().String("input-file", "", "Print the row date range of this table file instead")

	// Bind all flags of cacheMigrateCmd to Viper
	cacheMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(cacheMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding cache migrate flags", err)
	}
}
