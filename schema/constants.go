package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the console output.
	OutputMode string

	// FileFormat represents the on-disk encoding of a cached table.
	FileFormat string

	// PartitionKey represents the column used to split a changelog into files.
	PartitionKey string

	// DatabaseBackend represents the backend that holds cache entries.
	DatabaseBackend string

	// ModelVersion represents an era of the EPSS scoring model.
	ModelVersion string
)

// All output modes supported.
const (
	TextOut  OutputMode = "text" // default
	CSVOut   OutputMode = "csv"
	JSONOut  OutputMode = "json"
	JSONLOut OutputMode = "jsonl"
)

// All file formats supported.
const (
	CSVFormat     FileFormat = "csv"
	CSVGzFormat   FileFormat = "csv.gz"
	JSONFormat    FileFormat = "json"
	JSONLFormat   FileFormat = "jsonl"
	JSONGzFormat  FileFormat = "json.gz"
	JSONLGzFormat FileFormat = "jsonl.gz"
	ParquetFormat FileFormat = "parquet" // default
)

// All partitioning keys supported.
const (
	PartitionByCVE  PartitionKey = "cve"
	PartitionByDate PartitionKey = "date" // default
)

// All cache backends supported.
const (
	FilesystemBackend DatabaseBackend = "filesystem" // default
	SQLiteBackend     DatabaseBackend = "sqlite"
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	RedisBackend      DatabaseBackend = "redis"
	BadgerBackend     DatabaseBackend = "badger"
	NoneBackend       DatabaseBackend = "none"
)

// All model versions supported.
const (
	ModelV1 ModelVersion = "v1"
	ModelV2 ModelVersion = "v2"
	ModelV3 ModelVersion = "v3" // default
	ModelV4 ModelVersion = "v4"
)

// Cache directory names under the work directory.
const (
	SnapshotsDir         = "raw-scores-by-date"
	ChangelogsByDateDir  = "changelogs-by-date"
	ChangelogsByCVEDir   = "changelogs-by-cve"
	ChangelogLinksDir    = "changelog-links"
	DateLayout           = "2006-01-02"
	Precision            = 5
	DefaultFileFormat    = ParquetFormat
	DefaultPartitionKey  = PartitionByDate
	DefaultModelVersion  = ModelV3
	DefaultCacheBackend  = FilesystemBackend
	DefaultSourceBaseURL = "https://epss.cyentia.com"
)

// Release dates of each model era. The configured era is the oldest one
// included, so it decides the earliest valid date.
const (
	V1ReleaseDate = "2021-04-14"
	V2ReleaseDate = "2022-02-04"
	V3ReleaseDate = "2023-03-07"
	V4ReleaseDate = "2025-03-17"
)

// ModelReleaseDates maps each model version to the first date it was published.
var ModelReleaseDates = map[ModelVersion]string{
	ModelV1: V1ReleaseDate,
	ModelV2: V2ReleaseDate,
	ModelV3: V3ReleaseDate,
	ModelV4: V4ReleaseDate,
}

// AllFileFormats lists every file format in a stable order.
var AllFileFormats = []FileFormat{
	CSVFormat, CSVGzFormat, JSONFormat, JSONLFormat, JSONGzFormat, JSONLGzFormat, ParquetFormat,
}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut:  {},
	CSVOut:   {},
	JSONOut:  {},
	JSONLOut: {},
}

// ValidFileFormats lists all valid file formats.
var ValidFileFormats = map[FileFormat]struct{}{
	CSVFormat:     {},
	CSVGzFormat:   {},
	JSONFormat:    {},
	JSONLFormat:   {},
	JSONGzFormat:  {},
	JSONLGzFormat: {},
	ParquetFormat: {},
}

// ValidPartitionKeys lists all valid partitioning keys.
var ValidPartitionKeys = map[PartitionKey]struct{}{
	PartitionByCVE:  {},
	PartitionByDate: {},
}

// ValidCacheBackends lists all valid cache backends.
var ValidCacheBackends = map[DatabaseBackend]struct{}{
	FilesystemBackend: {},
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	RedisBackend:      {},
	BadgerBackend:     {},
	NoneBackend:       {},
}

// ValidModelVersions lists all valid model versions.
var ValidModelVersions = map[ModelVersion]struct{}{
	ModelV1: {},
	ModelV2: {},
	ModelV3: {},
	ModelV4: {},
}
