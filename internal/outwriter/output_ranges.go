package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// rangeRow is the serialized form of a score range with plain dates.
type rangeRow struct {
	CVE           string  `json:"cve"`
	MinDate       string  `json:"min_date"`
	MaxDate       string  `json:"max_date"`
	MinEPSS       float64 `json:"min_epss"`
	MaxEPSS       float64 `json:"max_epss"`
	MinPercentile float64 `json:"min_percentile"`
	MaxPercentile float64 `json:"max_percentile"`
	Changes       int     `json:"changes"`

	EPSSChange          float64  `json:"epss_change"`
	EPSSChangePct       *float64 `json:"epss_change_pct"`
	PercentileChange    float64  `json:"percentile_change"`
	PercentileChangePct *float64 `json:"percentile_change_pct"`
}

func toRangeRows(ranges []schema.ScoreRange) []rangeRow {
	rows := make([]rangeRow, len(ranges))
	for i, r := range ranges {
		rows[i] = rangeRow{
			CVE:           r.CVE,
			MinDate:       schema.FormatDate(r.MinDate),
			MaxDate:       schema.FormatDate(r.MaxDate),
			MinEPSS:       r.MinEPSS,
			MaxEPSS:       r.MaxEPSS,
			MinPercentile: r.MinPercentile,
			MaxPercentile: r.MaxPercentile,
			Changes:       r.Changes,

			EPSSChange:          r.EPSSChange,
			EPSSChangePct:       r.EPSSChangePct,
			PercentileChange:    r.PercentileChange,
			PercentileChangePct: r.PercentileChangePct,
		}
	}
	return rows
}

// WriteScoreRanges outputs per-CVE score ranges, dispatching based on the output format configured.
func WriteScoreRanges(w io.Writer, ranges []schema.ScoreRange, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, fmtPct := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		if err := writeJSON(w, toRangeRows(ranges)); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.JSONLOut:
		if err := writeJSONLines(w, toRangeRows(ranges)); err != nil {
			return fmt.Errorf("error writing JSONL output: %w", err)
		}
	case schema.CSVOut:
		header := []string{
			"cve", "min_date", "max_date", "min_epss", "max_epss", "min_percentile", "max_percentile", "changes",
			"epss_change", "epss_change_pct", "percentile_change", "percentile_change_pct",
		}
		err := writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
			for _, r := range ranges {
				row := append(rangeCells(r, fmtFloat),
					fmtFloat(r.EPSSChange),
					fmtPct(r.EPSSChangePct),
					fmtFloat(r.PercentileChange),
					fmtPct(r.PercentileChangePct),
				)
				if err := cw.Write(row); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	default:
		if err := writeRangeTable(w, ranges, cfg, duration); err != nil {
			return fmt.Errorf("error writing table output: %w", err)
		}
	}
	return nil
}

func rangeCells(r schema.ScoreRange, fmtFloat func(float64) string) []string {
	return []string{
		r.CVE,
		schema.FormatDate(r.MinDate),
		schema.FormatDate(r.MaxDate),
		fmtFloat(r.MinEPSS),
		fmtFloat(r.MaxEPSS),
		fmtFloat(r.MinPercentile),
		fmtFloat(r.MaxPercentile),
		strconv.Itoa(r.Changes),
	}
}

func writeRangeTable(w io.Writer, ranges []schema.ScoreRange, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, fmtPct := createFormatters(cfg.Precision)
	wide := showPercentileColumns(cfg)

	table := tablewriter.NewWriter(w)
	headers := []string{"CVE", "From", "To", "Min EPSS", "Max EPSS", "Change", "Change %"}
	if wide {
		headers = append(headers, "Min Pct", "Max Pct", "Pct Change")
	}
	headers = append(headers, "Changes")
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(ranges))
	for _, r := range ranges {
		row := []string{
			r.CVE,
			schema.FormatDate(r.MinDate),
			schema.FormatDate(r.MaxDate),
			fmtFloat(r.MinEPSS),
			fmtFloat(r.MaxEPSS),
			fmtFloat(r.EPSSChange),
			fmtPct(r.EPSSChangePct),
		}
		if wide {
			row = append(row,
				fmtFloat(r.MinPercentile),
				fmtFloat(r.MaxPercentile),
				fmtFloat(r.PercentileChange),
			)
		}
		data = append(data, append(row, strconv.Itoa(r.Changes)))
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Showing %d CVEs\n", len(ranges)); err != nil {
		return err
	}
	return writeFooter(w, cfg, duration)
}
