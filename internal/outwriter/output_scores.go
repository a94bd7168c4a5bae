package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/parquet"
	"github.com/huangsam/epss/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteScoreRows outputs snapshot scores, dispatching based on the output format configured.
func WriteScoreRows(w io.Writer, scores []schema.Score, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		if err := writeJSON(w, parquet.ConvertScores(scores)); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.JSONLOut:
		if err := writeJSONLines(w, parquet.ConvertScores(scores)); err != nil {
			return fmt.Errorf("error writing JSONL output: %w", err)
		}
	case schema.CSVOut:
		err := writeCSVWithHeader(w, []string{"cve", "date", "epss", "percentile"}, func(cw *csv.Writer) error {
			for _, s := range scores {
				if err := cw.Write([]string{s.CVE, schema.FormatDate(s.Date), fmtFloat(s.EPSS), fmtFloat(s.Percentile)}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	default:
		if err := writeScoreTable(w, scores, cfg, fmtFloat, duration); err != nil {
			return fmt.Errorf("error writing table output: %w", err)
		}
	}
	return nil
}

func writeScoreTable(w io.Writer, scores []schema.Score, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "CVE", "Date", "EPSS", "Percentile"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(scores))
	for i, s := range scores {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			s.CVE,
			schema.FormatDate(s.Date),
			fmtFloat(s.EPSS),
			fmtFloat(s.Percentile),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Showing %d scores\n", len(scores)); err != nil {
		return err
	}
	return writeFooter(w, cfg, duration)
}
