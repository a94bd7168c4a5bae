// Package outwriter has output and writer logic.
package outwriter

import (
	"io"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
)

// OutWriter provides a unified interface for all output operations.
// Every method writes to the configured output file, or stdout when none is set.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteChanges prints a changelog using the configured output format.
func (ow *OutWriter) WriteChanges(records []schema.ChangeRecord, cfg *contract.Config, duration time.Duration) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteChangeRecords(w, records, cfg, duration)
	}, "Wrote changelog")
}

// WriteScores prints snapshot scores using the configured output format.
func (ow *OutWriter) WriteScores(scores []schema.Score, cfg *contract.Config, duration time.Duration) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteScoreRows(w, scores, cfg, duration)
	}, "Wrote scores")
}

// WriteRanges prints per-CVE score ranges using the configured output format.
func (ow *OutWriter) WriteRanges(ranges []schema.ScoreRange, cfg *contract.Config, duration time.Duration) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteScoreRanges(w, ranges, cfg, duration)
	}, "Wrote score ranges")
}

// WriteDateRange prints the valid date range of the configured model era.
func (ow *OutWriter) WriteDateRange(minDate, maxDate time.Time, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteDateRangeResult(w, minDate, maxDate, cfg)
	}, "Wrote date range")
}

// WriteFileDateRange prints the row date range of a table file.
func (ow *OutWriter) WriteFileDateRange(path string, dates []time.Time, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteFileDateRangeResult(w, path, dates, cfg)
	}, "Wrote date range")
}

// WriteDates prints a list of dates.
func (ow *OutWriter) WriteDates(dates []time.Time, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteDateList(w, dates, cfg)
	}, "Wrote dates")
}

// WriteInit prints the outcome of an init run.
func (ow *OutWriter) WriteInit(report schema.InitReport, cfg *contract.Config, duration time.Duration) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteInitReport(w, report, cfg, duration)
	}, "Wrote init report")
}

// WriteClear prints how many cache entries were removed.
func (ow *OutWriter) WriteClear(removed map[string]int, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteClearResult(w, removed, cfg)
	}, "Wrote clear result")
}

// WriteStatus prints cache backend status.
func (ow *OutWriter) WriteStatus(status schema.CacheStatus, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteCacheStatus(w, status, cfg)
	}, "Wrote cache status")
}
