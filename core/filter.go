package core

import (
	"time"

	"github.com/huangsam/epss/schema"
)

// matcher is a compiled Query.
type matcher struct {
	q    schema.Query
	cves map[string]struct{}
}

func newMatcher(q schema.Query) matcher {
	m := matcher{q: q}
	if len(q.CVEs) > 0 {
		m.cves = make(map[string]struct{}, len(q.CVEs))
		for _, cve := range q.CVEs {
			m.cves[cve] = struct{}{}
		}
	}
	return m
}

func (m matcher) match(cve string, date time.Time, epss, percentile float64) bool {
	if m.cves != nil {
		if _, ok := m.cves[cve]; !ok {
			return false
		}
	}
	q := m.q
	if q.MinEPSS != nil && epss < *q.MinEPSS {
		return false
	}
	if q.MaxEPSS != nil && epss > *q.MaxEPSS {
		return false
	}
	if q.MinPercentile != nil && percentile < *q.MinPercentile {
		return false
	}
	if q.MaxPercentile != nil && percentile > *q.MaxPercentile {
		return false
	}
	if q.MinDate != nil && date.Before(schema.Day(*q.MinDate)) {
		return false
	}
	if q.MaxDate != nil && date.After(schema.Day(*q.MaxDate)) {
		return false
	}
	return true
}

// ApplyQuery returns the scores matching every predicate of q, in input order.
// The input is never modified and an empty query returns a copy.
func ApplyQuery(scores []schema.Score, q schema.Query) []schema.Score {
	m := newMatcher(q)
	out := make([]schema.Score, 0, len(scores))
	for _, s := range scores {
		if m.match(s.CVE, s.Date, s.EPSS, s.Percentile) {
			out = append(out, s)
		}
	}
	return out
}

// FilterChanges returns the change records matching q. Score and percentile
// bounds apply to the new values and date bounds to the record date.
func FilterChanges(records []schema.ChangeRecord, q schema.Query) []schema.ChangeRecord {
	m := newMatcher(q)
	out := make([]schema.ChangeRecord, 0, len(records))
	for _, r := range records {
		if m.match(r.CVE, r.Date, r.NewEPSS, r.NewPercentile) {
			out = append(out, r)
		}
	}
	return out
}
