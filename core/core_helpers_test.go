package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSource serves canned snapshots and counts fetches per date.
type fakeSource struct {
	mu     sync.Mutex
	scores map[string][]schema.Score
	errs   map[string]error
	calls  map[string]int
	latest time.Time
	delay  time.Duration
}

func newFakeSource(latest string) *fakeSource {
	return &fakeSource{
		scores: make(map[string][]schema.Score),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		latest: schema.MustParseDate(latest),
	}
}

// with registers the scores published on date. Rows are given without dates.
func (f *fakeSource) with(date string, scores ...schema.Score) *fakeSource {
	f.scores[date] = scores
	return f
}

func (f *fakeSource) failing(date string, err error) *fakeSource {
	f.errs[date] = err
	return f
}

func (f *fakeSource) Fetch(ctx context.Context, date time.Time) ([]schema.Score, error) {
	key := schema.FormatDate(date)
	f.mu.Lock()
	f.calls[key]++
	scores, ok := f.scores[key]
	err := f.errs[key]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &schema.NotAvailableError{Date: date}
	}
	return append([]schema.Score(nil), scores...), nil
}

func (f *fakeSource) LatestDate(context.Context) (time.Time, error) {
	return f.latest, nil
}

func (f *fakeSource) fetches(date string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[date]
}

func (f *fakeSource) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

var _ contract.ScoreSource = &fakeSource{}

func score(cve string, epss, pct float64) schema.Score {
	return schema.Score{CVE: cve, EPSS: epss, Percentile: pct}
}

func datePtr(s string) *time.Time {
	d := schema.MustParseDate(s)
	return &d
}

func newTestPool(t *testing.T) pond.Pool {
	pool := pond.NewPool(4)
	t.Cleanup(pool.StopAndWait)
	return pool
}

// testHarness bundles the pieces most core tests need.
type testHarness struct {
	store      *iocache.MemoryStore
	source     *fakeSource
	resolver   *Resolver
	snapshots  *SnapshotCache
	changelogs *ChangelogBuilder
	metrics    *Metrics
}

func newHarness(t *testing.T, src *fakeSource, format schema.FileFormat) *testHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := iocache.NewMemoryStore()
	pool := newTestPool(t)
	metrics := NewMetrics()
	resolver := NewResolver(schema.ModelV3, src.LatestDate, logger)
	snapshots := NewSnapshotCache(store, src, format, pool, logger, metrics)
	return &testHarness{
		store:      store,
		source:     src,
		resolver:   resolver,
		snapshots:  snapshots,
		changelogs: NewChangelogBuilder(store, snapshots, resolver, format, pool, logger, metrics),
		metrics:    metrics,
	}
}

func dates(t *testing.T, ss ...string) []time.Time {
	t.Helper()
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		d, err := schema.ParseDate(s)
		require.NoError(t, err)
		out[i] = d
	}
	return out
}
