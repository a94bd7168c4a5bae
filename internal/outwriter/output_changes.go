package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/parquet"
	"github.com/huangsam/epss/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var changeHeader = []string{
	"cve", "date", "old_date",
	"old_epss", "new_epss", "epss_delta", "epss_delta_pct",
	"old_percentile", "new_percentile", "percentile_delta", "percentile_delta_pct",
}

// WriteChangeRecords outputs a changelog, dispatching based on the output format configured.
func WriteChangeRecords(w io.Writer, records []schema.ChangeRecord, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeJSON(w, parquet.ConvertChanges(records)); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.JSONLOut:
		if err := writeJSONLines(w, parquet.ConvertChanges(records)); err != nil {
			return fmt.Errorf("error writing JSONL output: %w", err)
		}
	case schema.CSVOut:
		if err := writeChangeCSV(w, records, cfg.Precision); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	default:
		if err := writeChangeTable(w, records, cfg, duration); err != nil {
			return fmt.Errorf("error writing table output: %w", err)
		}
	}
	return nil
}

func writeChangeCSV(w io.Writer, records []schema.ChangeRecord, precision int) error {
	fmtFloat, fmtPct := createFormatters(precision)
	return writeCSVWithHeader(w, changeHeader, func(cw *csv.Writer) error {
		for _, r := range records {
			row := []string{
				r.CVE,
				schema.FormatDate(r.Date),
				schema.FormatDate(r.OldDate),
				fmtFloat(r.OldEPSS),
				fmtFloat(r.NewEPSS),
				fmtFloat(r.EPSSDelta),
				fmtPct(r.EPSSDeltaPct),
				fmtFloat(r.OldPercentile),
				fmtFloat(r.NewPercentile),
				fmtFloat(r.PercentileDelta),
				fmtPct(r.PercentileDeltaPct),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeChangeTable prints the changelog as a table with colored deltas.
func writeChangeTable(w io.Writer, records []schema.ChangeRecord, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, fmtPct := createFormatters(cfg.Precision)
	fmtDelta := deltaFormatter(cfg.Precision, cfg.UseColors)
	wide := showPercentileColumns(cfg)

	table := tablewriter.NewWriter(w)
	headers := []string{"CVE", "Date", "Since", "Old EPSS", "New EPSS", "Delta", "Delta %"}
	if wide {
		headers = append(headers, "Old Pct", "New Pct", "Pct Delta")
	}
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	cves := make(map[string]struct{})
	dates := make(map[time.Time]struct{})
	for _, r := range records {
		cves[r.CVE] = struct{}{}
		dates[r.Date] = struct{}{}
		row := []string{
			r.CVE,
			schema.FormatDate(r.Date),
			schema.FormatDate(r.OldDate),
			fmtFloat(r.OldEPSS),
			fmtFloat(r.NewEPSS),
			fmtDelta(r.EPSSDelta),
			fmtPct(r.EPSSDeltaPct),
		}
		if wide {
			row = append(row,
				fmtFloat(r.OldPercentile),
				fmtFloat(r.NewPercentile),
				fmtDelta(r.PercentileDelta),
			)
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Showing %d changes for %d CVEs across %d dates\n", len(records), len(cves), len(dates)); err != nil {
		return err
	}
	return writeFooter(w, cfg, duration)
}

// writeFooter prints the timing line shared by the tables.
func writeFooter(w io.Writer, cfg *contract.Config, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	_, err := fmt.Fprintf(w, "Completed in %v with %d workers. Cache backend: %s\n", duration.Round(time.Millisecond), cfg.Workers, cfg.CacheBackend)
	return err
}
