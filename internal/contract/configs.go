package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/epss/schema"
)

// Default values for configuration.
const (
	DefaultPrecision   = 5
	MaxPrecision       = 8
	DefaultHTTPTimeout = 60 * time.Second
	DefaultRateLimit   = 4.0
	DefaultLogLevel    = "warn"
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for cache and changelog operations.
// This struct is the "final, validated" config.
type Config struct {
	WorkDir      string
	FileFormat   schema.FileFormat
	ModelVersion schema.ModelVersion
	Workers      int

	MinDate *time.Time // Nil means the earliest date of the model era
	MaxDate *time.Time // Nil means the latest published date
	Query   schema.Query

	PreserveOrder bool
	Overwrite     bool
	PartitionBy   []schema.PartitionKey

	Output     schema.OutputMode
	OutputFile string
	Precision  int
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	SourceURL   string
	VerifyTLS   bool
	RateLimit   float64 // Requests per second against the score source
	HTTPTimeout time.Duration

	LogLevel    string
	MetricsFile string
	TraceFile   string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	WorkDir        string  `mapstructure:"workdir"`
	Format         string  `mapstructure:"format"`
	ModelVersion   string  `mapstructure:"model-version"`
	IncludeV1      bool    `mapstructure:"include-v1"`
	IncludeV2      bool    `mapstructure:"include-v2"`
	Workers        int     `mapstructure:"workers"`
	Output         string  `mapstructure:"output"`
	OutputFile     string  `mapstructure:"output-file"`
	Precision      int     `mapstructure:"precision"`
	Width          int     `mapstructure:"width"`
	Color          string  `mapstructure:"color"`
	CacheBackend   string  `mapstructure:"cache-backend"`
	CacheDBConnect string  `mapstructure:"cache-db-connect"`
	SourceURL      string  `mapstructure:"source-url"`
	Insecure       bool    `mapstructure:"insecure"`
	RateLimit      float64 `mapstructure:"rate-limit"`
	Timeout        string  `mapstructure:"timeout"`
	LogLevel       string  `mapstructure:"log-level"`
	MetricsFile    string  `mapstructure:"metrics-file"`
	TraceFile      string  `mapstructure:"trace-file"`

	// --- Range and query flags shared by init, changelog, range and scores ---
	Date          string `mapstructure:"date"`
	MinDate       string `mapstructure:"min-date"`
	MaxDate       string `mapstructure:"max-date"`
	CVEs          string `mapstructure:"cve"`
	MinEPSS       string `mapstructure:"min-epss"`
	MaxEPSS       string `mapstructure:"max-epss"`
	MinPercentile string `mapstructure:"min-percentile"`
	MaxPercentile string `mapstructure:"max-percentile"`

	// --- Changelog and init flags ---
	PreserveOrder bool   `mapstructure:"preserve-order"`
	Overwrite     bool   `mapstructure:"overwrite"`
	PartitionBy   string `mapstructure:"partition-by"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.PartitionBy = slices.Clone(c.PartitionBy)
	clone.Query.CVEs = slices.Clone(c.Query.CVEs)
	return &clone
}

// ProcessAndValidate performs all complex parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	if err := processSource(cfg, input); err != nil {
		return err
	}
	if err := processDateRange(cfg, input); err != nil {
		return err
	}
	if err := processQuery(cfg, input); err != nil {
		return err
	}
	return processPartitionKeys(cfg, input)
}

// ResolveModelVersion picks the oldest era requested. The include flags win
// over the version string.
func ResolveModelVersion(version string, includeV1, includeV2 bool) (schema.ModelVersion, error) {
	switch {
	case includeV1:
		return schema.ModelV1, nil
	case includeV2:
		return schema.ModelV2, nil
	}
	if version == "" {
		return schema.DefaultModelVersion, nil
	}
	mv := schema.ModelVersion(strings.ToLower(version))
	if _, ok := schema.ValidModelVersions[mv]; !ok {
		return "", fmt.Errorf("invalid model version '%s'. must be v1, v2, v3, v4", version)
	}
	return mv, nil
}

// ValidateDatabaseConnectionString validates the format of connection strings
// for the networked backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.FilesystemBackend, schema.SQLiteBackend, schema.BadgerBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	case schema.RedisBackend:
		if connStr == "" {
			return fmt.Errorf("cache-db-connect is required when using %s backend", backend)
		}
		if !strings.HasPrefix(connStr, "redis://") && !strings.HasPrefix(connStr, "rediss://") {
			return fmt.Errorf("Redis connection string must start with 'redis://' or 'rediss://'")
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all scalar fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.LogLevel = input.LogLevel
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	cfg.MetricsFile = input.MetricsFile
	cfg.TraceFile = input.TraceFile
	cfg.PreserveOrder = input.PreserveOrder
	cfg.Overwrite = input.Overwrite

	cfg.UseColors = true
	if input.Color != "" {
		colors, err := ParseBoolString(input.Color)
		if err != nil {
			return fmt.Errorf("invalid --color value: %w", err)
		}
		cfg.UseColors = colors
	}

	// --- 1. WorkDir ---
	workDir := input.WorkDir
	if workDir == "" {
		workDir = GetDefaultWorkDir()
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("invalid workdir %q: %w", workDir, err)
	}
	cfg.WorkDir = absWorkDir

	// --- 2. Workers Validation ---
	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 3. Format Validation ---
	cfg.FileFormat = schema.FileFormat(strings.ToLower(input.Format))
	if cfg.FileFormat == "" {
		cfg.FileFormat = schema.DefaultFileFormat
	}
	if _, ok := schema.ValidFileFormats[cfg.FileFormat]; !ok {
		return fmt.Errorf("invalid file format '%s'. must be one of %v", input.Format, schema.AllFileFormats)
	}

	// --- 4. Model Version ---
	mv, err := ResolveModelVersion(input.ModelVersion, input.IncludeV1, input.IncludeV2)
	if err != nil {
		return err
	}
	cfg.ModelVersion = mv

	// --- 5. Precision and Output Validation ---
	if input.Precision < 1 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 1 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, jsonl", input.Output)
	}

	return nil
}

// validateBackendConfigs validates the cache backend configuration.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.DefaultCacheBackend
	}
	if _, ok := schema.ValidCacheBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be filesystem, sqlite, mysql, postgresql, redis, badger, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	return ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect)
}

// processSource handles the score source settings.
func processSource(cfg *Config, input *ConfigRawInput) error {
	cfg.SourceURL = strings.TrimSuffix(strings.TrimSpace(input.SourceURL), "/")
	if cfg.SourceURL == "" {
		cfg.SourceURL = schema.DefaultSourceBaseURL
	}
	if !strings.HasPrefix(cfg.SourceURL, "http://") && !strings.HasPrefix(cfg.SourceURL, "https://") {
		return fmt.Errorf("source-url must be an http or https URL (received %q)", input.SourceURL)
	}
	cfg.VerifyTLS = !input.Insecure

	if input.RateLimit < 0 {
		return fmt.Errorf("rate-limit cannot be negative (received %.2f)", input.RateLimit)
	}
	cfg.RateLimit = input.RateLimit

	cfg.HTTPTimeout = DefaultHTTPTimeout
	if input.Timeout != "" {
		d, err := time.ParseDuration(input.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", input.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be greater than 0 (received %s)", d)
		}
		cfg.HTTPTimeout = d
	}
	return nil
}

// processDateRange parses the raw date bounds. Clamping against the published
// range happens later in the resolver, since the latest date needs the network.
func processDateRange(cfg *Config, input *ConfigRawInput) error {
	cfg.MinDate, cfg.MaxDate = nil, nil

	if input.Date != "" {
		if input.MinDate != "" || input.MaxDate != "" {
			return fmt.Errorf("cannot specify --date with --min-date or --max-date")
		}
		d, err := schema.ParseDate(input.Date)
		if err != nil {
			return err
		}
		cfg.MinDate, cfg.MaxDate = &d, &d
		return nil
	}

	if input.MinDate != "" {
		d, err := schema.ParseDate(input.MinDate)
		if err != nil {
			return fmt.Errorf("invalid --min-date: %w", err)
		}
		cfg.MinDate = &d
	}
	if input.MaxDate != "" {
		d, err := schema.ParseDate(input.MaxDate)
		if err != nil {
			return fmt.Errorf("invalid --max-date: %w", err)
		}
		cfg.MaxDate = &d
	}
	return nil
}

// processQuery builds the score filter from the raw query flags.
func processQuery(cfg *Config, input *ConfigRawInput) error {
	q := schema.Query{CVEs: SplitList(input.CVEs, true)}

	bounds := []struct {
		flag string
		raw  string
		dst  **float64
	}{
		{"min-epss", input.MinEPSS, &q.MinEPSS},
		{"max-epss", input.MaxEPSS, &q.MaxEPSS},
		{"min-percentile", input.MinPercentile, &q.MinPercentile},
		{"max-percentile", input.MaxPercentile, &q.MaxPercentile},
	}
	for _, b := range bounds {
		if strings.TrimSpace(b.raw) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(b.raw), 64)
		if err != nil {
			return fmt.Errorf("invalid --%s value '%s': %w", b.flag, b.raw, err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0 (received %.5f)", b.flag, v)
		}
		*b.dst = schema.Float(v)
	}
	if q.MinEPSS != nil && q.MaxEPSS != nil && *q.MinEPSS > *q.MaxEPSS {
		return fmt.Errorf("min-epss (%.5f) cannot be greater than max-epss (%.5f)", *q.MinEPSS, *q.MaxEPSS)
	}
	if q.MinPercentile != nil && q.MaxPercentile != nil && *q.MinPercentile > *q.MaxPercentile {
		return fmt.Errorf("min-percentile (%.5f) cannot be greater than max-percentile (%.5f)", *q.MinPercentile, *q.MaxPercentile)
	}

	cfg.Query = q
	return nil
}

// processPartitionKeys parses the comma-separated partitioning keys.
func processPartitionKeys(cfg *Config, input *ConfigRawInput) error {
	cfg.PartitionBy = nil
	for _, p := range SplitList(input.PartitionBy, false) {
		key := schema.PartitionKey(strings.ToLower(p))
		if _, ok := schema.ValidPartitionKeys[key]; !ok {
			return fmt.Errorf("invalid partition key '%s'. must be cve or date", p)
		}
		if !slices.Contains(cfg.PartitionBy, key) {
			cfg.PartitionBy = append(cfg.PartitionBy, key)
		}
	}
	return nil
}

// RevalidateRange re-parses the date range and query of cfg from raw values.
// It serves callers whose arguments bypass the flag set, such as MCP tools.
func RevalidateRange(cfg *Config, input *ConfigRawInput) error {
	if err := processDateRange(cfg, input); err != nil {
		return err
	}
	return processQuery(cfg, input)
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

// GetDefaultWorkDir returns the default cache root under the user's home.
func GetDefaultWorkDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".epss"
	}
	return filepath.Join(homeDir, ".epss")
}
