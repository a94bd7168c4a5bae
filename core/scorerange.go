package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/huangsam/epss/schema"
)

// RangeView answers "which values did a CVE take over a window" from the changelog.
type RangeView struct {
	changelogs *ChangelogBuilder
}

// NewRangeView builds a range view over changelogs.
func NewRangeView(changelogs *ChangelogBuilder) *RangeView {
	return &RangeView{changelogs: changelogs}
}

// Summarize reduces the changes of one CVE over [minDate, maxDate]. A CVE
// without recorded changes in the window yields a NotFoundError.
func (v *RangeView) Summarize(ctx context.Context, cve string, minDate, maxDate *time.Time) (schema.ScoreRange, error) {
	cve = strings.ToUpper(strings.TrimSpace(cve))
	ranges, err := v.SummarizeAll(ctx, minDate, maxDate, schema.Query{CVEs: []string{cve}})
	if err != nil {
		return schema.ScoreRange{}, err
	}
	if len(ranges) == 0 {
		return schema.ScoreRange{}, &schema.NotFoundError{What: fmt.Sprintf("score changes for %s", cve)}
	}
	return ranges[0], nil
}

// ScoreRange returns the lowest and highest EPSS score of cve over the window.
func (v *RangeView) ScoreRange(ctx context.Context, cve string, minDate, maxDate *time.Time) (float64, float64, error) {
	r, err := v.Summarize(ctx, cve, minDate, maxDate)
	if err != nil {
		return 0, 0, err
	}
	return r.MinEPSS, r.MaxEPSS, nil
}

// PercentileRange returns the lowest and highest percentile of cve over the window.
func (v *RangeView) PercentileRange(ctx context.Context, cve string, minDate, maxDate *time.Time) (float64, float64, error) {
	r, err := v.Summarize(ctx, cve, minDate, maxDate)
	if err != nil {
		return 0, 0, err
	}
	return r.MinPercentile, r.MaxPercentile, nil
}

// SummarizeAll builds the changelog for the window restricted by q and reduces
// it to one range per CVE, sorted by CVE.
func (v *RangeView) SummarizeAll(ctx context.Context, minDate, maxDate *time.Time, q schema.Query) ([]schema.ScoreRange, error) {
	records, err := v.changelogs.BuildRange(ctx, minDate, maxDate, BuildOptions{Query: &q})
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// Summarize reduces change records to the min and max of their old and new
// values per CVE, plus the spread between them, sorted by CVE.
func Summarize(records []schema.ChangeRecord) []schema.ScoreRange {
	byCVE := make(map[string]*schema.ScoreRange)
	for _, r := range records {
		sr, ok := byCVE[r.CVE]
		if !ok {
			sr = &schema.ScoreRange{
				CVE:           r.CVE,
				MinDate:       r.OldDate,
				MaxDate:       r.Date,
				MinEPSS:       min(r.OldEPSS, r.NewEPSS),
				MaxEPSS:       max(r.OldEPSS, r.NewEPSS),
				MinPercentile: min(r.OldPercentile, r.NewPercentile),
				MaxPercentile: max(r.OldPercentile, r.NewPercentile),
			}
			byCVE[r.CVE] = sr
		}
		sr.Changes++
		if r.OldDate.Before(sr.MinDate) {
			sr.MinDate = r.OldDate
		}
		if r.Date.After(sr.MaxDate) {
			sr.MaxDate = r.Date
		}
		sr.MinEPSS = min(sr.MinEPSS, r.OldEPSS, r.NewEPSS)
		sr.MaxEPSS = max(sr.MaxEPSS, r.OldEPSS, r.NewEPSS)
		sr.MinPercentile = min(sr.MinPercentile, r.OldPercentile, r.NewPercentile)
		sr.MaxPercentile = max(sr.MaxPercentile, r.OldPercentile, r.NewPercentile)
	}

	out := make([]schema.ScoreRange, 0, len(byCVE))
	for _, sr := range byCVE {
		sr.EPSSChange = schema.Round(sr.MaxEPSS - sr.MinEPSS)
		sr.EPSSChangePct = percentChange(sr.EPSSChange, sr.MinEPSS)
		sr.PercentileChange = schema.Round(sr.MaxPercentile - sr.MinPercentile)
		sr.PercentileChangePct = percentChange(sr.PercentileChange, sr.MinPercentile)
		out = append(out, *sr)
	}
	slices.SortFunc(out, func(a, b schema.ScoreRange) int {
		return strings.Compare(a.CVE, b.CVE)
	})
	return out
}
