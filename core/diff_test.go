package core

import (
	"testing"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(date string, scores ...schema.Score) schema.Snapshot {
	snap, err := newSnapshot(schema.MustParseDate(date), scores)
	if err != nil {
		panic(err)
	}
	return snap
}

func TestDiff_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		older schema.Snapshot
		newer schema.Snapshot
		want  []schema.ChangeRecord
	}{
		{
			name:  "score increase",
			older: snapshot("2024-01-01", score("E1", 0.10, 0.50)),
			newer: snapshot("2024-01-02", score("E1", 0.12, 0.55)),
			want: []schema.ChangeRecord{{
				CVE:                "E1",
				Date:               schema.MustParseDate("2024-01-02"),
				OldDate:            schema.MustParseDate("2024-01-01"),
				OldEPSS:            0.10,
				NewEPSS:            0.12,
				EPSSDelta:          0.02,
				EPSSDeltaPct:       schema.Float(20.0),
				OldPercentile:      0.50,
				NewPercentile:      0.55,
				PercentileDelta:    0.05,
				PercentileDeltaPct: schema.Float(10.0),
			}},
		},
		{
			name:  "unchanged",
			older: snapshot("2024-01-01", score("E1", 0.10, 0.5)),
			newer: snapshot("2024-01-02", score("E1", 0.10, 0.5)),
		},
		{
			name:  "additions and removals are not reported",
			older: snapshot("2024-01-01", score("GONE", 0.3, 0.9)),
			newer: snapshot("2024-01-02", score("NEW", 0.4, 0.95)),
		},
		{
			name:  "float noise below precision is ignored",
			older: snapshot("2024-01-01", score("E1", 0.1234500001, 0.5)),
			newer: snapshot("2024-01-02", score("E1", 0.1234499999, 0.6)),
		},
		{
			name:  "zero old value yields undefined percentages",
			older: snapshot("2024-01-01", score("E1", 0, 0)),
			newer: snapshot("2024-01-02", score("E1", 0.001, 0.2)),
			want: []schema.ChangeRecord{{
				CVE:             "E1",
				Date:            schema.MustParseDate("2024-01-02"),
				OldDate:         schema.MustParseDate("2024-01-01"),
				NewEPSS:         0.001,
				EPSSDelta:       0.001,
				NewPercentile:   0.2,
				PercentileDelta: 0.2,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.older, tt.newer)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiff_Idempotence(t *testing.T) {
	s := snapshot("2024-01-01",
		score("CVE-2024-0001", 0.1, 0.5),
		score("CVE-2024-0002", 0, 0),
		score("CVE-2024-0003", 0.97, 0.999))
	assert.Empty(t, Diff(s, s))
}

func TestDiff_DirectionSymmetry(t *testing.T) {
	a := snapshot("2024-01-01",
		score("CVE-2024-0001", 0.10, 0.50),
		score("CVE-2024-0002", 0.30, 0.80),
		score("CVE-2024-0003", 0.05, 0.20))
	b := snapshot("2024-01-02",
		score("CVE-2024-0001", 0.12, 0.55),
		score("CVE-2024-0002", 0.30, 0.80),
		score("CVE-2024-0003", 0.01, 0.10))

	forward := Diff(a, b)
	backward := Diff(b, a)
	require.Len(t, forward, 2)
	require.Len(t, backward, 2)

	for i := range forward {
		f, r := forward[i], backward[i]
		assert.Equal(t, f.CVE, r.CVE)
		assert.Equal(t, f.OldEPSS, r.NewEPSS)
		assert.Equal(t, f.NewEPSS, r.OldEPSS)
		assert.Equal(t, f.EPSSDelta, -r.EPSSDelta)
		assert.Equal(t, f.PercentileDelta, -r.PercentileDelta)
	}
}

func TestDiffScores_SortedByDateAndCVE(t *testing.T) {
	day := schema.MustParseDate("2024-01-02")
	older := []schema.Score{
		{CVE: "CVE-2024-0003", Date: day.AddDate(0, 0, -1), EPSS: 0.1},
		{CVE: "CVE-2024-0001", Date: day.AddDate(0, 0, -1), EPSS: 0.1},
	}
	newer := []schema.Score{
		{CVE: "CVE-2024-0003", Date: day, EPSS: 0.2},
		{CVE: "CVE-2024-0001", Date: day, EPSS: 0.2},
	}

	got := DiffScores(older, newer)
	require.Len(t, got, 2)
	assert.Equal(t, "CVE-2024-0001", got[0].CVE)
	assert.Equal(t, "CVE-2024-0003", got[1].CVE)
}

func TestPercentChange(t *testing.T) {
	assert.Nil(t, percentChange(0.1, 0))
	assert.Equal(t, 50.0, *percentChange(0.05, 0.1))
	assert.Equal(t, -100.0, *percentChange(-0.2, 0.2))
}
