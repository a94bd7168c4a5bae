// Package schema has the records, constants and errors shared by every layer.
package schema

import (
	"time"
)

// Score is one published EPSS value for a CVE on a date.
type Score struct {
	CVE        string    `json:"cve"`
	Date       time.Time `json:"date"`
	EPSS       float64   `json:"epss"`
	Percentile float64   `json:"percentile"`
}

// Snapshot is the immutable set of scores published for a single date.
// Scores are sorted by CVE.
type Snapshot struct {
	Date   time.Time
	Scores []Score
}

// Len returns the number of scores in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Scores)
}

// ChangeRecord describes how the score of a CVE moved between two snapshots.
// A nil percentage delta means the old value was zero and the ratio is undefined.
type ChangeRecord struct {
	CVE                string    `json:"cve"`
	Date               time.Time `json:"date"`
	OldDate            time.Time `json:"old_date"`
	OldEPSS            float64   `json:"old_epss"`
	NewEPSS            float64   `json:"new_epss"`
	EPSSDelta          float64   `json:"epss_delta"`
	EPSSDeltaPct       *float64  `json:"epss_delta_pct"`
	OldPercentile      float64   `json:"old_percentile"`
	NewPercentile      float64   `json:"new_percentile"`
	PercentileDelta    float64   `json:"percentile_delta"`
	PercentileDeltaPct *float64  `json:"percentile_delta_pct"`
}

// Query is a conjunction of optional predicates. Nil fields impose no constraint
// and every bound is inclusive.
type Query struct {
	CVEs          []string   `json:"cves,omitempty"`
	MinEPSS       *float64   `json:"min_epss,omitempty"`
	MaxEPSS       *float64   `json:"max_epss,omitempty"`
	MinPercentile *float64   `json:"min_percentile,omitempty"`
	MaxPercentile *float64   `json:"max_percentile,omitempty"`
	MinDate       *time.Time `json:"min_date,omitempty"`
	MaxDate       *time.Time `json:"max_date,omitempty"`
}

// IsEmpty reports whether the query has no predicates.
func (q Query) IsEmpty() bool {
	return len(q.CVEs) == 0 &&
		q.MinEPSS == nil && q.MaxEPSS == nil &&
		q.MinPercentile == nil && q.MaxPercentile == nil &&
		q.MinDate == nil && q.MaxDate == nil
}

// ScoreRange is the range of values observed for one CVE over a window of changes.
type ScoreRange struct {
	CVE           string    `json:"cve"`
	MinDate       time.Time `json:"min_date"`
	MaxDate       time.Time `json:"max_date"`
	MinEPSS       float64   `json:"min_epss"`
	MaxEPSS       float64   `json:"max_epss"`
	MinPercentile float64   `json:"min_percentile"`
	MaxPercentile float64   `json:"max_percentile"`
	Changes       int       `json:"changes"`

	// EPSSChange is MaxEPSS - MinEPSS. EPSSChangePct is that change relative
	// to MinEPSS, nil when MinEPSS is zero. The percentile pair is the same.
	EPSSChange          float64  `json:"epss_change"`
	EPSSChangePct       *float64 `json:"epss_change_pct"`
	PercentileChange    float64  `json:"percentile_change"`
	PercentileChangePct *float64 `json:"percentile_change_pct"`
}
