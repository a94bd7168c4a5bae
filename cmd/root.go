package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/huangsam/epss/core"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	"github.com/huangsam/epss/internal/outwriter"
	"github.com/huangsam/epss/internal/source"
	"github.com/huangsam/epss/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// profile holds profiling configuration.
var profile = &contract.ProfileConfig{}

// cacheManager is the global persistence manager instance.
var cacheManager contract.CacheManager

// scoreSource overrides the HTTP fetcher when set.
var scoreSource contract.ScoreSource

// engine is built by sharedSetup for the commands that read scores.
var engine *core.Engine

// tracing exports spans when --trace-file is set.
var tracing *contract.Tracing

// ow renders every command result.
var ow = outwriter.NewOutWriter()

// startProfiling starts CPU and memory profiling if enabled.
func startProfiling() error {
	if !profile.Enabled {
		return nil
	}

	// Start CPU profiling
	cpuFile, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return fmt.Errorf("could not start CPU profiling: %w", err)
	}

	// Memory profiling will be captured at the end
	_, err = fmt.Fprintf(os.Stderr, "Profiling enabled. CPU profile: %s.cpu.prof, Memory profile: %s.mem.prof\n", profile.Prefix, profile.Prefix)
	return err
}

// stopProfiling stops profiling and writes memory profile.
func stopProfiling() error {
	if !profile.Enabled {
		return nil
	}

	pprof.StopCPUProfile()

	// Write memory profile
	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiling complete. Use 'go tool pprof %s.cpu.prof' to analyze.\n", profile.Prefix)
	return err
}

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:                "epss",
	Short:              "Cache daily EPSS scores and track how they change.",
	Long:               `EPSS keeps a local cache of the daily Exploit Prediction Scoring System snapshots and derives changelogs from them.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return multierr.Combine(writeMetrics(), stopTracing())
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Check if a specific config file is provided
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Set config file name and paths
		viper.SetConfigName(".epss") // Name of config file (without extension)
		viper.SetConfigType("yaml")  // We'll use YAML format
		viper.AddConfigPath(".")     // Look in the current directory
		viper.AddConfigPath("$HOME") // Look in the home directory
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("EPSS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // Read in environment variables that match

	// Set defaults in Viper
	viper.SetDefault("workdir", contract.GetDefaultWorkDir())
	viper.SetDefault("format", schema.DefaultFileFormat)
	viper.SetDefault("model-version", schema.DefaultModelVersion)
	viper.SetDefault("workers", contract.DefaultWorkers)
	viper.SetDefault("precision", contract.DefaultPrecision)
	viper.SetDefault("output", schema.TextOut)
	viper.SetDefault("cache-backend", schema.DefaultCacheBackend)
	viper.SetDefault("cache-db-connect", "")
	viper.SetDefault("source-url", schema.DefaultSourceBaseURL)
	viper.SetDefault("rate-limit", contract.DefaultRateLimit)
	viper.SetDefault("timeout", contract.DefaultHTTPTimeout.String())
	viper.SetDefault("log-level", contract.DefaultLogLevel)
	viper.SetDefault("color", "yes")
}

// sharedSetup unmarshals config, runs validation and builds the engine.
func sharedSetup(ctx context.Context, _ *cobra.Command, _ []string) error {
	// Handle profiling flag
	profilePrefix := viper.GetString("profile")
	if err := contract.ProcessProfilingConfig(profile, profilePrefix); err != nil {
		return fmt.Errorf("failed to process profiling config: %w", err)
	}
	if profile.Enabled {
		if err := startProfiling(); err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}

	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := loadConfigFile(); err != nil {
		return err
	}

	// 2. Unmarshal all resolved values from Viper into our raw input struct.
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Run all validation and complex parsing.
	// This function populates the global 'cfg' from 'input'.
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}

	logger, err := contract.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	if cfg.TraceFile != "" {
		if err := stopTracing(); err != nil {
			return err
		}
		if tracing, err = contract.NewTracing(cfg.TraceFile, version); err != nil {
			return err
		}
		otel.SetTracerProvider(tracing.Provider)
	}

	// 4. Initialize persistence layer with validated config
	if err := iocache.InitStores(ctx, cfg.CacheBackend, cfg.WorkDir, cfg.CacheDBConnect); err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	if cacheManager == nil {
		cacheManager = iocache.Manager
	}

	// 5. Wire the score source and engine
	src := scoreSource
	if src == nil {
		src = source.NewHTTPFetcher(source.Options{
			BaseURL:   cfg.SourceURL,
			VerifyTLS: cfg.VerifyTLS,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.HTTPTimeout,
			Logger:    logger.Named("source"),
		})
	}
	engine, err = core.NewEngine(cfg, cacheManager, src, logger.Named("core"))
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	logger.Debug("engine ready",
		zap.String("workdir", cfg.WorkDir),
		zap.String("backend", string(cfg.CacheBackend)),
		zap.String("format", string(cfg.FileFormat)),
		zap.String("model", string(cfg.ModelVersion)),
		zap.Int("workers", cfg.Workers))

	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// loadConfigFile handles config file loading logic common to all setup functions.
func loadConfigFile() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}
	return nil
}

// writeMetrics dumps the engine collectors when --metrics-file is set.
func writeMetrics() error {
	if engine == nil || cfg.MetricsFile == "" {
		return nil
	}
	if err := engine.Metrics().WriteToTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// stopTracing flushes spans to the trace file. It is safe to call twice.
func stopTracing() error {
	if tracing == nil {
		return nil
	}
	err := tracing.Shutdown(rootCtx)
	tracing = nil
	if err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetCacheManager sets the global cache manager.
func SetCacheManager(mgr contract.CacheManager) {
	cacheManager = mgr
}

// SetScoreSource replaces the HTTP score source.
func SetScoreSource(src contract.ScoreSource) {
	scoreSource = src
}

// CloseEngine stops the engine worker pool if one was built.
func CloseEngine() {
	if engine != nil {
		engine.Close()
	}
}

// StopTracing flushes pending spans if tracing is enabled.
func StopTracing() error {
	return stopTracing()
}

// StopProfiling stops profiling if enabled.
func StopProfiling() error {
	return stopProfiling()
}
