package core

import (
	"context"
	"testing"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	d1 := schema.MustParseDate("2024-01-01")
	d2 := schema.MustParseDate("2024-01-02")
	d3 := schema.MustParseDate("2024-01-03")
	records := []schema.ChangeRecord{
		{CVE: "CVE-2024-0002", OldDate: d1, Date: d2, OldEPSS: 0.4, NewEPSS: 0.5, OldPercentile: 0.8, NewPercentile: 0.85},
		{CVE: "CVE-2024-0001", OldDate: d1, Date: d2, OldEPSS: 0.1, NewEPSS: 0.2, OldPercentile: 0.5, NewPercentile: 0.6},
		{CVE: "CVE-2024-0001", OldDate: d2, Date: d3, OldEPSS: 0.2, NewEPSS: 0.05, OldPercentile: 0.6, NewPercentile: 0.3},
	}

	got := Summarize(records)
	require.Len(t, got, 2)
	assert.Equal(t, schema.ScoreRange{
		CVE:           "CVE-2024-0001",
		MinDate:       d1,
		MaxDate:       d3,
		MinEPSS:       0.05,
		MaxEPSS:       0.2,
		MinPercentile: 0.3,
		MaxPercentile: 0.6,
		Changes:       2,

		EPSSChange:          0.15,
		EPSSChangePct:       schema.Float(300),
		PercentileChange:    0.3,
		PercentileChangePct: schema.Float(100),
	}, got[0])
	assert.Equal(t, "CVE-2024-0002", got[1].CVE)
	assert.Equal(t, 1, got[1].Changes)
	assert.Equal(t, 0.1, got[1].EPSSChange)
	require.NotNil(t, got[1].EPSSChangePct)
	assert.Equal(t, 25.0, *got[1].EPSSChangePct)

	assert.Empty(t, Summarize(nil))
}

func TestSummarize_ZeroMinimumHasNoPercentChange(t *testing.T) {
	d1 := schema.MustParseDate("2024-01-01")
	d2 := schema.MustParseDate("2024-01-02")
	got := Summarize([]schema.ChangeRecord{
		{CVE: "CVE-2024-0001", OldDate: d1, Date: d2, OldEPSS: 0, NewEPSS: 0.2, OldPercentile: 0, NewPercentile: 0.4},
	})
	require.Len(t, got, 1)
	assert.Equal(t, 0.2, got[0].EPSSChange)
	assert.Nil(t, got[0].EPSSChangePct)
	assert.Equal(t, 0.4, got[0].PercentileChange)
	assert.Nil(t, got[0].PercentileChangePct)
}

func TestRangeView(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, threeDaySource(), schema.ParquetFormat)
	view := NewRangeView(h.changelogs)
	lo, hi := datePtr("2024-01-01"), datePtr("2024-01-03")

	r, err := view.Summarize(ctx, " cve-2024-0003 ", lo, hi)
	require.NoError(t, err)
	assert.Equal(t, "CVE-2024-0003", r.CVE)
	assert.Equal(t, 2, r.Changes)

	minEPSS, maxEPSS, err := view.ScoreRange(ctx, "CVE-2024-0003", lo, hi)
	require.NoError(t, err)
	assert.Equal(t, 0.25, minEPSS)
	assert.Equal(t, 0.35, maxEPSS)

	minPct, maxPct, err := view.PercentileRange(ctx, "CVE-2024-0003", lo, hi)
	require.NoError(t, err)
	assert.Equal(t, 0.65, minPct)
	assert.Equal(t, 0.75, maxPct)

	_, _, err = view.ScoreRange(ctx, "CVE-2024-9999", lo, hi)
	var notFound *schema.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	all, err := view.SummarizeAll(ctx, lo, hi, schema.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "CVE-2024-0001", all[0].CVE)
}
