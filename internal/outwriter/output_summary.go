package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	"github.com/huangsam/epss/schema"
)

// dateRangeRow is the serialized form of the valid date range of a model era.
type dateRangeRow struct {
	ModelVersion string `json:"model_version"`
	MinDate      string `json:"min_date"`
	MaxDate      string `json:"max_date"`
}

// WriteDateRangeResult outputs the valid date range of the configured model era.
func WriteDateRangeResult(w io.Writer, minDate, maxDate time.Time, cfg *contract.Config) error {
	row := dateRangeRow{
		ModelVersion: string(cfg.ModelVersion),
		MinDate:      schema.FormatDate(minDate),
		MaxDate:      schema.FormatDate(maxDate),
	}
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, row)
	case schema.JSONLOut:
		return writeJSONLines(w, []dateRangeRow{row})
	case schema.CSVOut:
		return writeCSVWithHeader(w, []string{"model_version", "min_date", "max_date"}, func(cw *csv.Writer) error {
			return cw.Write([]string{row.ModelVersion, row.MinDate, row.MaxDate})
		})
	default:
		_, err := fmt.Fprintf(w, "Model %s: %s to %s\n", row.ModelVersion, row.MinDate, row.MaxDate)
		return err
	}
}

// fileDateRangeRow is the serialized date range of the rows in a table file.
type fileDateRangeRow struct {
	File    string `json:"file"`
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
}

// WriteFileDateRangeResult outputs the first and last row date of a table file.
func WriteFileDateRangeResult(w io.Writer, path string, dates []time.Time, cfg *contract.Config) error {
	if len(dates) == 0 {
		return fmt.Errorf("no dated rows in %s", path)
	}
	row := fileDateRangeRow{
		File:    path,
		MinDate: schema.FormatDate(dates[0]),
		MaxDate: schema.FormatDate(dates[len(dates)-1]),
	}
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, row)
	case schema.JSONLOut:
		return writeJSONLines(w, []fileDateRangeRow{row})
	case schema.CSVOut:
		return writeCSVWithHeader(w, []string{"file", "min_date", "max_date"}, func(cw *csv.Writer) error {
			return cw.Write([]string{row.File, row.MinDate, row.MaxDate})
		})
	default:
		_, err := fmt.Fprintf(w, "%s: %s to %s\n", row.File, row.MinDate, row.MaxDate)
		return err
	}
}

// WriteDateList outputs dates one per row.
func WriteDateList(w io.Writer, dates []time.Time, cfg *contract.Config) error {
	rows := formatDates(dates)
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, rows)
	case schema.JSONLOut:
		type dateRow struct {
			Date string `json:"date"`
		}
		out := make([]dateRow, len(rows))
		for i, d := range rows {
			out[i] = dateRow{Date: d}
		}
		return writeJSONLines(w, out)
	case schema.CSVOut:
		return writeCSVWithHeader(w, []string{"date"}, func(cw *csv.Writer) error {
			for _, d := range rows {
				if err := cw.Write([]string{d}); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		for _, d := range rows {
			if _, err := fmt.Fprintln(w, d); err != nil {
				return err
			}
		}
		return nil
	}
}

// initRow is the serialized form of an init report with plain dates.
type initRow struct {
	MinDate     string                                         `json:"min_date"`
	MaxDate     string                                         `json:"max_date"`
	Available   int                                            `json:"available"`
	Fetched     []string                                       `json:"fetched"`
	Unavailable []string                                       `json:"unavailable"`
	Changes     int                                            `json:"changes"`
	Partitions  map[schema.PartitionKey]schema.PartitionResult `json:"partitions,omitempty"`
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = schema.FormatDate(d)
	}
	return out
}

// WriteInitReport outputs what an init run materialized.
func WriteInitReport(w io.Writer, report schema.InitReport, cfg *contract.Config, duration time.Duration) error {
	row := initRow{
		MinDate:     schema.FormatDate(report.MinDate),
		MaxDate:     schema.FormatDate(report.MaxDate),
		Available:   len(report.Snapshots.Available),
		Fetched:     formatDates(report.Snapshots.Fetched),
		Unavailable: formatDates(report.Snapshots.Unavailable),
		Changes:     report.Changes,
		Partitions:  report.Partitions,
	}
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, row)
	case schema.JSONLOut:
		return writeJSONLines(w, []initRow{row})
	case schema.CSVOut:
		header := []string{"min_date", "max_date", "available", "fetched", "unavailable", "changes"}
		return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
			return cw.Write([]string{
				row.MinDate, row.MaxDate,
				strconv.Itoa(row.Available),
				strconv.Itoa(len(row.Fetched)),
				strconv.Itoa(len(row.Unavailable)),
				strconv.Itoa(row.Changes),
			})
		})
	}

	lines := []string{
		fmt.Sprintf("Initialized %s to %s", row.MinDate, row.MaxDate),
		fmt.Sprintf("Snapshots: %d available, %d fetched, %d unpublished", row.Available, len(row.Fetched), len(row.Unavailable)),
		fmt.Sprintf("Changes: %d", row.Changes),
	}
	for _, key := range slices.Sorted(maps.Keys(row.Partitions)) {
		p := row.Partitions[key]
		lines = append(lines, fmt.Sprintf("Partitions by %s: %d written, %d skipped", key, len(p.Written), len(p.Skipped)))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return writeFooter(w, cfg, duration)
}

// WriteClearResult outputs how many cache entries were removed per directory.
func WriteClearResult(w io.Writer, removed map[string]int, cfg *contract.Config) error {
	dirs := slices.Sorted(maps.Keys(removed))
	switch cfg.Output {
	case schema.JSONOut, schema.JSONLOut:
		return writeJSONLines(w, []map[string]int{removed})
	case schema.CSVOut:
		return writeCSVWithHeader(w, []string{"dir", "removed"}, func(cw *csv.Writer) error {
			for _, dir := range dirs {
				if err := cw.Write([]string{dir, strconv.Itoa(removed[dir])}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if len(dirs) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to clear")
		return err
	}
	for _, dir := range dirs {
		if _, err := fmt.Fprintf(w, "Removed %d entries from %s\n", removed[dir], dir); err != nil {
			return err
		}
	}
	return nil
}

// WriteCacheStatus outputs the status of the configured cache backend.
func WriteCacheStatus(w io.Writer, status schema.CacheStatus, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, status)
	case schema.JSONLOut:
		return writeJSONLines(w, []schema.CacheStatus{status})
	default:
		iocache.PrintCacheStatus(w, status)
		return nil
	}
}
