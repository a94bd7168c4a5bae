// Package parquet provides row layouts and codecs for storing score snapshots
// and changelogs as Parquet using github.com/parquet-go/parquet-go.
package parquet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/huangsam/epss/schema"
	"github.com/parquet-go/parquet-go"
)

// ScoreRow represents a single published score.
// Dates are stored as YYYY-MM-DD strings so files stay readable from any tool.
type ScoreRow struct {
	// CVE is the vulnerability identifier
	CVE string `parquet:"cve,snappy" json:"cve"`

	// Date is the publication date (empty when the date is implied by the file name)
	Date string `parquet:"date,optional,snappy" json:"date,omitempty"`

	// EPSS is the exploitation probability (0-1)
	EPSS float64 `parquet:"epss,snappy" json:"epss"`

	// Percentile is the rank of the score among all scores of the same day (0-1)
	Percentile float64 `parquet:"percentile,snappy" json:"percentile"`
}

// ChangeRow represents a score change between two consecutive snapshots.
// Percent changes are nullable because they are undefined when the old value is zero.
type ChangeRow struct {
	CVE     string `parquet:"cve,snappy" json:"cve"`
	Date    string `parquet:"date,snappy" json:"date"`
	OldDate string `parquet:"old_date,snappy" json:"old_date"`

	OldEPSS      float64  `parquet:"old_epss,snappy" json:"old_epss"`
	NewEPSS      float64  `parquet:"new_epss,snappy" json:"new_epss"`
	EPSSDelta    float64  `parquet:"epss_delta,snappy" json:"epss_delta"`
	EPSSDeltaPct *float64 `parquet:"epss_delta_pct,optional,snappy" json:"epss_delta_pct"`

	OldPercentile      float64  `parquet:"old_percentile,snappy" json:"old_percentile"`
	NewPercentile      float64  `parquet:"new_percentile,snappy" json:"new_percentile"`
	PercentileDelta    float64  `parquet:"percentile_delta,snappy" json:"percentile_delta"`
	PercentileDeltaPct *float64 `parquet:"percentile_delta_pct,optional,snappy" json:"percentile_delta_pct"`
}

// WriteScores encodes scores as a Parquet file into w.
func WriteScores(w io.Writer, scores []schema.Score) error {
	return writeRows(w, ConvertScores(scores))
}

// ReadScores decodes a Parquet file of scores. Rows without a date take fallback.
func ReadScores(data []byte, fallback string) ([]schema.Score, error) {
	rows, err := readRows[ScoreRow](data)
	if err != nil {
		return nil, err
	}
	return ToScores(rows, fallback)
}

// WriteChanges encodes change records as a Parquet file into w.
func WriteChanges(w io.Writer, records []schema.ChangeRecord) error {
	return writeRows(w, ConvertChanges(records))
}

// ReadChanges decodes a Parquet file of change records.
func ReadChanges(data []byte) ([]schema.ChangeRecord, error) {
	rows, err := readRows[ChangeRow](data)
	if err != nil {
		return nil, err
	}
	return ToChanges(rows)
}

// ConvertScores converts schema.Score values to ScoreRow for Parquet export.
func ConvertScores(scores []schema.Score) []ScoreRow {
	result := make([]ScoreRow, len(scores))
	for i, s := range scores {
		result[i] = ScoreRow{
			CVE:        s.CVE,
			Date:       schema.FormatDate(s.Date),
			EPSS:       s.EPSS,
			Percentile: s.Percentile,
		}
	}
	return result
}

// ConvertChanges converts schema.ChangeRecord values to ChangeRow for Parquet export.
func ConvertChanges(records []schema.ChangeRecord) []ChangeRow {
	result := make([]ChangeRow, len(records))
	for i, r := range records {
		result[i] = ChangeRow{
			CVE:                r.CVE,
			Date:               schema.FormatDate(r.Date),
			OldDate:            schema.FormatDate(r.OldDate),
			OldEPSS:            r.OldEPSS,
			NewEPSS:            r.NewEPSS,
			EPSSDelta:          r.EPSSDelta,
			EPSSDeltaPct:       r.EPSSDeltaPct,
			OldPercentile:      r.OldPercentile,
			NewPercentile:      r.NewPercentile,
			PercentileDelta:    r.PercentileDelta,
			PercentileDeltaPct: r.PercentileDeltaPct,
		}
	}
	return result
}

// ToScores converts rows back to schema.Score values. Rows without a date take fallback.
func ToScores(rows []ScoreRow, fallback string) ([]schema.Score, error) {
	scores := make([]schema.Score, len(rows))
	for i, row := range rows {
		date := row.Date
		if date == "" {
			date = fallback
		}
		d, err := schema.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i, row.CVE, err)
		}
		scores[i] = schema.Score{CVE: row.CVE, Date: d, EPSS: row.EPSS, Percentile: row.Percentile}
	}
	return scores, nil
}

// ToChanges converts rows back to schema.ChangeRecord values.
func ToChanges(rows []ChangeRow) ([]schema.ChangeRecord, error) {
	records := make([]schema.ChangeRecord, len(rows))
	for i, row := range rows {
		date, err := schema.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i, row.CVE, err)
		}
		oldDate, err := schema.ParseDate(row.OldDate)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i, row.CVE, err)
		}
		records[i] = schema.ChangeRecord{
			CVE:                row.CVE,
			Date:               date,
			OldDate:            oldDate,
			OldEPSS:            row.OldEPSS,
			NewEPSS:            row.NewEPSS,
			EPSSDelta:          row.EPSSDelta,
			EPSSDeltaPct:       row.EPSSDeltaPct,
			OldPercentile:      row.OldPercentile,
			NewPercentile:      row.NewPercentile,
			PercentileDelta:    row.PercentileDelta,
			PercentileDeltaPct: row.PercentileDeltaPct,
		}
	}
	return records, nil
}

func writeRows[T any](w io.Writer, rows []T) error {
	// The schema is derived from the row struct tags
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

func readRows[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet rows: %w", err)
	}
	return rows, nil
}
