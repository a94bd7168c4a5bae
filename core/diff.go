package core

import (
	"cmp"
	"slices"
	"strings"

	"github.com/huangsam/epss/schema"
)

// Diff returns a record for every CVE present in both snapshots whose score
// changed. CVEs added or removed between the two dates are not reported.
func Diff(older, newer schema.Snapshot) []schema.ChangeRecord {
	return DiffScores(older.Scores, newer.Scores)
}

// DiffScores is Diff over raw score slices. Values are rounded to
// schema.Precision before comparing so float noise never produces a change.
// Output is sorted by (date, cve).
func DiffScores(older, newer []schema.Score) []schema.ChangeRecord {
	prev := make(map[string]schema.Score, len(older))
	for _, s := range older {
		prev[s.CVE] = s
	}

	var out []schema.ChangeRecord
	for _, cur := range newer {
		old, ok := prev[cur.CVE]
		if !ok {
			continue
		}
		if rec, changed := compare(old, cur); changed {
			out = append(out, rec)
		}
	}
	SortChanges(out)
	return out
}

// compare builds the change record between two observations of one CVE.
func compare(old, cur schema.Score) (schema.ChangeRecord, bool) {
	oldEPSS, newEPSS := schema.Round(old.EPSS), schema.Round(cur.EPSS)
	if oldEPSS == newEPSS {
		return schema.ChangeRecord{}, false
	}
	oldPct, newPct := schema.Round(old.Percentile), schema.Round(cur.Percentile)

	epssDelta := schema.Round(newEPSS - oldEPSS)
	pctDelta := schema.Round(newPct - oldPct)
	return schema.ChangeRecord{
		CVE:                cur.CVE,
		Date:               cur.Date,
		OldDate:            old.Date,
		OldEPSS:            oldEPSS,
		NewEPSS:            newEPSS,
		EPSSDelta:          epssDelta,
		EPSSDeltaPct:       percentChange(epssDelta, oldEPSS),
		OldPercentile:      oldPct,
		NewPercentile:      newPct,
		PercentileDelta:    pctDelta,
		PercentileDeltaPct: percentChange(pctDelta, oldPct),
	}, true
}

// percentChange returns delta relative to base in percent, or nil when base is zero.
func percentChange(delta, base float64) *float64 {
	if base == 0 {
		return nil
	}
	return schema.Float(schema.Round(delta / base * 100))
}

// SortChanges orders records by (date, cve) in place.
func SortChanges(records []schema.ChangeRecord) {
	slices.SortFunc(records, func(a, b schema.ChangeRecord) int {
		return cmp.Or(a.Date.Compare(b.Date), strings.Compare(a.CVE, b.CVE))
	})
}
