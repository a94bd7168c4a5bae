package schema

import "time"

// CacheStatus represents the status of a blob store holding cache entries.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// EnsureResult reports which dates of a range are materialized in the cache.
type EnsureResult struct {
	Available   []time.Time `json:"available"`
	Fetched     []time.Time `json:"fetched"`
	Unavailable []time.Time `json:"unavailable"`
}

// PartitionResult reports which partitions were written or skipped.
type PartitionResult struct {
	Written []string `json:"written"`
	Skipped []string `json:"skipped"`
}

// InitReport summarizes an Init run.
type InitReport struct {
	MinDate    time.Time                        `json:"min_date"`
	MaxDate    time.Time                        `json:"max_date"`
	Snapshots  EnsureResult                     `json:"snapshots"`
	Changes    int                              `json:"changes"`
	Partitions map[PartitionKey]PartitionResult `json:"partitions,omitempty"`
}
