// Package tablefile encodes and decodes score and change tables in every
// supported file format.
package tablefile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/huangsam/epss/internal/parquet"
	"github.com/huangsam/epss/schema"
	"github.com/klauspost/compress/gzip"
)

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Column names shared by the CSV and JSON layouts.
var (
	scoreColumns  = []string{"cve", "date", "epss", "percentile"}
	changeColumns = []string{
		"cve", "date", "old_date",
		"old_epss", "new_epss", "epss_delta", "epss_delta_pct",
		"old_percentile", "new_percentile", "percentile_delta", "percentile_delta_pct",
	}
)

// EncodeScores serializes scores in the given format.
func EncodeScores(format schema.FileFormat, scores []schema.Score) ([]byte, error) {
	rows := parquet.ConvertScores(scores)
	return encode(format, rows, parquet.WriteScores, scores, func(w *csv.Writer) error {
		if err := w.Write(scoreColumns); err != nil {
			return err
		}
		for _, r := range rows {
			if err := w.Write([]string{r.CVE, r.Date, formatFloat(r.EPSS), formatFloat(r.Percentile)}); err != nil {
				return err
			}
		}
		return nil
	})
}

// DecodeScores parses scores in the given format. Rows without a date take the
// date embedded in name, which is usually the cache key or file path.
func DecodeScores(format schema.FileFormat, data []byte, name string) ([]schema.Score, error) {
	fallback := ""
	if d, ok := schema.DateFromName(name); ok {
		fallback = schema.FormatDate(d)
	}

	data, base, err := unwrap(format, data)
	if err != nil {
		return nil, err
	}

	var rows []parquet.ScoreRow
	switch base {
	case schema.ParquetFormat:
		return parquet.ReadScores(data, fallback)
	case schema.CSVFormat:
		rows, err = readScoreCSV(data)
	case schema.JSONFormat:
		err = json.Unmarshal(data, &rows)
	case schema.JSONLFormat:
		rows, err = readJSONL[parquet.ScoreRow](data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s scores: %w", format, err)
	}
	return parquet.ToScores(rows, fallback)
}

// EncodeChanges serializes change records in the given format. Undefined
// percent changes become empty CSV cells and JSON nulls.
func EncodeChanges(format schema.FileFormat, records []schema.ChangeRecord) ([]byte, error) {
	rows := parquet.ConvertChanges(records)
	return encode(format, rows, parquet.WriteChanges, records, func(w *csv.Writer) error {
		if err := w.Write(changeColumns); err != nil {
			return err
		}
		for _, r := range rows {
			record := []string{
				r.CVE, r.Date, r.OldDate,
				formatFloat(r.OldEPSS), formatFloat(r.NewEPSS), formatFloat(r.EPSSDelta), formatOptional(r.EPSSDeltaPct),
				formatFloat(r.OldPercentile), formatFloat(r.NewPercentile), formatFloat(r.PercentileDelta), formatOptional(r.PercentileDeltaPct),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// DecodeChanges parses change records in the given format.
func DecodeChanges(format schema.FileFormat, data []byte) ([]schema.ChangeRecord, error) {
	data, base, err := unwrap(format, data)
	if err != nil {
		return nil, err
	}

	var rows []parquet.ChangeRow
	switch base {
	case schema.ParquetFormat:
		return parquet.ReadChanges(data)
	case schema.CSVFormat:
		rows, err = readChangeCSV(data)
	case schema.JSONFormat:
		err = json.Unmarshal(data, &rows)
	case schema.JSONLFormat:
		rows, err = readJSONL[parquet.ChangeRow](data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s changes: %w", format, err)
	}
	return parquet.ToChanges(rows)
}

// ReadScoresFile reads a score table from disk, detecting the format from the extension.
func ReadScoresFile(path string) ([]schema.Score, error) {
	format, err := schema.FormatFromName(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeScores(format, data, path)
}

// ReadChangesFile reads a change table from disk, detecting the format from the extension.
func ReadChangesFile(path string) ([]schema.ChangeRecord, error) {
	format, err := schema.FormatFromName(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeChanges(format, data)
}

// WriteScoresFile writes a score table to disk in the format named by the extension.
func WriteScoresFile(path string, scores []schema.Score) error {
	format, err := schema.FormatFromName(path)
	if err != nil {
		return err
	}
	data, err := EncodeScores(format, scores)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteChangesFile writes a change table to disk in the format named by the extension.
func WriteChangesFile(path string, records []schema.ChangeRecord) error {
	format, err := schema.FormatFromName(path)
	if err != nil {
		return err
	}
	data, err := EncodeChanges(format, records)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Table names the kind of rows a table file holds.
type Table string

// Table kinds accepted by ConvertFile.
const (
	ScoresTable  Table = "scores"
	ChangesTable Table = "changes"
)

// ConvertFile reads the table at src and writes it to dst, each in the format
// named by its extension. It returns the number of rows written.
func ConvertFile(src, dst string, table Table) (int, error) {
	switch table {
	case ScoresTable:
		scores, err := ReadScoresFile(src)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", src, err)
		}
		return len(scores), WriteScoresFile(dst, scores)
	case ChangesTable:
		records, err := ReadChangesFile(src)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", src, err)
		}
		return len(records), WriteChangesFile(dst, records)
	default:
		return 0, fmt.Errorf("invalid table '%s'. must be scores or changes", table)
	}
}

// encode dispatches on the base format and applies gzip for the .gz variants.
func encode[R any, V any](
	format schema.FileFormat,
	rows []R,
	writeParquet func(io.Writer, []V) error,
	values []V,
	writeCSV func(*csv.Writer) error,
) ([]byte, error) {
	base, compressed := splitFormat(format)

	var buf bytes.Buffer
	var w io.Writer = &buf
	var gz *gzip.Writer
	if compressed {
		gz = gzip.NewWriter(&buf)
		w = gz
	}

	var err error
	switch base {
	case schema.ParquetFormat:
		err = writeParquet(w, values)
	case schema.CSVFormat:
		cw := csv.NewWriter(w)
		if err = writeCSV(cw); err == nil {
			cw.Flush()
			err = cw.Error()
		}
	case schema.JSONFormat:
		if rows == nil {
			rows = []R{}
		}
		err = json.NewEncoder(w).Encode(rows)
	case schema.JSONLFormat:
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err = enc.Encode(r); err != nil {
				break
			}
		}
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", format, err)
		}
	}
	return buf.Bytes(), nil
}

// unwrap decompresses gzip variants and returns the base format.
func unwrap(format schema.FileFormat, data []byte) ([]byte, schema.FileFormat, error) {
	base, compressed := splitFormat(format)
	if !compressed {
		return data, base, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress %s: %w", format, err)
	}
	return raw, base, nil
}

func splitFormat(format schema.FileFormat) (schema.FileFormat, bool) {
	s := string(format)
	if base, ok := strings.CutSuffix(s, ".gz"); ok {
		return schema.FileFormat(base), true
	}
	return format, false
}

func readJSONL[T any](data []byte) ([]T, error) {
	var rows []T
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var row T
		if err := dec.Decode(&row); err == io.EOF {
			return rows, nil
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// readScoreCSV reads a score CSV. Lines starting with '#' are comments, the
// percentile column is optional for the oldest files and date is optional everywhere.
func readScoreCSV(data []byte) ([]parquet.ScoreRow, error) {
	header, records, err := readCSV(data)
	if err != nil || header == nil {
		return nil, err
	}
	cve, epss := header["cve"], header["epss"]
	if cve < 0 || epss < 0 {
		return nil, fmt.Errorf("%w: cve and epss are required", ErrMissingColumn)
	}
	pct, date := header["percentile"], header["date"]

	rows := make([]parquet.ScoreRow, 0, len(records))
	for i, rec := range records {
		row := parquet.ScoreRow{CVE: field(rec, cve)}
		if row.EPSS, err = parseFloat(field(rec, epss)); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		if row.Percentile, err = parseFloat(field(rec, pct)); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		row.Date = field(rec, date)
		rows = append(rows, row)
	}
	return rows, nil
}

func readChangeCSV(data []byte) ([]parquet.ChangeRow, error) {
	header, records, err := readCSV(data)
	if err != nil || header == nil {
		return nil, err
	}
	for _, col := range []string{"cve", "date", "old_date", "old_epss", "new_epss"} {
		if header[col] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	rows := make([]parquet.ChangeRow, 0, len(records))
	for i, rec := range records {
		row := parquet.ChangeRow{
			CVE:     field(rec, header["cve"]),
			Date:    field(rec, header["date"]),
			OldDate: field(rec, header["old_date"]),
		}
		floats := []struct {
			col string
			dst *float64
		}{
			{"old_epss", &row.OldEPSS},
			{"new_epss", &row.NewEPSS},
			{"epss_delta", &row.EPSSDelta},
			{"old_percentile", &row.OldPercentile},
			{"new_percentile", &row.NewPercentile},
			{"percentile_delta", &row.PercentileDelta},
		}
		for _, f := range floats {
			if *f.dst, err = parseFloat(field(rec, header[f.col])); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", i+2, f.col, err)
			}
		}
		if row.EPSSDeltaPct, err = parseOptional(field(rec, header["epss_delta_pct"])); err != nil {
			return nil, fmt.Errorf("line %d column epss_delta_pct: %w", i+2, err)
		}
		if row.PercentileDeltaPct, err = parseOptional(field(rec, header["percentile_delta_pct"])); err != nil {
			return nil, fmt.Errorf("line %d column percentile_delta_pct: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// columnIndex maps column names to positions; unknown names yield -1.
type columnIndex map[string]int

func (c columnIndex) get(name string) int {
	if i, ok := c[name]; ok {
		return i
	}
	return -1
}

// readCSV returns a header index and the data records. Empty input yields a nil header.
func readCSV(data []byte) (map[string]int, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	idx := columnIndex{}
	for i, name := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	header := make(map[string]int, len(scoreColumns)+len(changeColumns))
	for _, name := range append(append([]string{}, scoreColumns...), changeColumns...) {
		header[name] = idx.get(name)
	}
	return header, records[1:], nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
