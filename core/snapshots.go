package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/huangsam/epss/schema"
	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// dateOutcome records what EnsureRange did for one date.
type dateOutcome int

const (
	outcomeAvailable dateOutcome = iota
	outcomeFetched
	outcomeUnavailable
)

// SnapshotCache maps a date to its immutable snapshot. It is the only component
// that talks to the score source.
type SnapshotCache struct {
	store   contract.BlobStore
	source  contract.ScoreSource
	format  schema.FileFormat
	pool    pond.Pool
	logger  *zap.Logger
	metrics *Metrics

	flights singleflight.Group
}

// NewSnapshotCache builds a cache over store. Fetches for EnsureRange run on pool.
func NewSnapshotCache(store contract.BlobStore, source contract.ScoreSource, format schema.FileFormat, pool pond.Pool, logger *zap.Logger, metrics *Metrics) *SnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &SnapshotCache{
		store:   store,
		source:  source,
		format:  format,
		pool:    pool,
		logger:  logger,
		metrics: metrics,
	}
}

// Key returns the cache key of the snapshot for date.
func (c *SnapshotCache) Key(date time.Time) string {
	return contract.CacheKey(schema.SnapshotsDir, schema.FormatDate(date), c.format)
}

// Has reports whether the snapshot for date is materialized.
func (c *SnapshotCache) Has(ctx context.Context, date time.Time) (bool, error) {
	key := c.Key(date)
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		return false, &schema.CacheIOError{Op: "exists", Key: key, Err: err}
	}
	return ok, nil
}

// GetSnapshot returns the snapshot for date, fetching and persisting it on a miss.
// Concurrent misses for the same date share one fetch.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, date time.Time) (schema.Snapshot, error) {
	date = schema.Day(date)
	key := c.Key(date)

	snap, err := c.load(ctx, key, date)
	if err == nil {
		c.metrics.cacheLookups.WithLabelValues("snapshot", "hit").Inc()
		return snap, nil
	}
	if !errors.Is(err, contract.ErrBlobNotFound) {
		return schema.Snapshot{}, err
	}
	c.metrics.cacheLookups.WithLabelValues("snapshot", "miss").Inc()

	return shared(ctx, &c.flights, key, func(ctx context.Context) (schema.Snapshot, error) {
		// Another flight may have filled the key between our miss and now.
		snap, err := c.load(ctx, key, date)
		if err == nil || !errors.Is(err, contract.ErrBlobNotFound) {
			return snap, err
		}
		return c.fetch(ctx, key, date)
	})
}

// load reads and decodes the snapshot under key. A missing key returns an
// error wrapping contract.ErrBlobNotFound.
func (c *SnapshotCache) load(ctx context.Context, key string, date time.Time) (schema.Snapshot, error) {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, contract.ErrBlobNotFound) {
		return schema.Snapshot{}, err
	}
	if err != nil {
		return schema.Snapshot{}, &schema.CacheIOError{Op: "read", Key: key, Err: err}
	}
	scores, err := tablefile.DecodeScores(c.format, data, key)
	if err != nil {
		return schema.Snapshot{}, &schema.CacheIOError{Op: "decode", Key: key, Err: err}
	}
	snap, err := newSnapshot(date, scores)
	if err != nil {
		return schema.Snapshot{}, &schema.CacheIOError{Op: "decode", Key: key, Err: err}
	}
	return snap, nil
}

// fetch downloads the snapshot for date and persists it under key.
func (c *SnapshotCache) fetch(ctx context.Context, key string, date time.Time) (snap schema.Snapshot, err error) {
	ctx, span := c.metrics.tracer.Start(ctx, "SnapshotCache.fetch")
	span.SetAttributes(attribute.String("date", schema.FormatDate(date)))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	scores, err := c.source.Fetch(ctx, date)
	if err != nil {
		if schema.IsNotAvailable(err) {
			c.metrics.fetches.WithLabelValues("unavailable").Inc()
		} else {
			c.metrics.fetches.WithLabelValues("error").Inc()
		}
		return schema.Snapshot{}, err
	}

	snap, err = newSnapshot(date, scores)
	if err != nil {
		c.metrics.fetches.WithLabelValues("error").Inc()
		return schema.Snapshot{}, &schema.FetchError{Date: date, Err: err}
	}
	data, err := tablefile.EncodeScores(c.format, snap.Scores)
	if err != nil {
		return schema.Snapshot{}, &schema.CacheIOError{Op: "encode", Key: key, Err: err}
	}
	if err := c.store.Put(ctx, key, data); err != nil {
		return schema.Snapshot{}, &schema.CacheIOError{Op: "write", Key: key, Err: err}
	}

	c.metrics.fetches.WithLabelValues("ok").Inc()
	c.metrics.fetchDuration.Observe(time.Since(start).Seconds())
	c.logger.Debug("cached snapshot",
		zap.String("date", schema.FormatDate(date)),
		zap.Int("rows", snap.Len()))
	return snap, nil
}

// EnsureRange materializes every date in [minDate, maxDate]. Dates the source
// never published are logged and reported as unavailable. Other failures are
// collected and returned together once every fetch has finished.
func (c *SnapshotCache) EnsureRange(ctx context.Context, minDate, maxDate time.Time) (result schema.EnsureResult, err error) {
	ctx, span := c.metrics.tracer.Start(ctx, "SnapshotCache.EnsureRange")
	span.SetAttributes(
		attribute.String("min_date", schema.FormatDate(minDate)),
		attribute.String("max_date", schema.FormatDate(maxDate)))
	defer func() { endSpan(span, err) }()

	dates := schema.DatesInRange(minDate, maxDate)
	outcomes := xsync.NewMap[string, dateOutcome]()

	var (
		mu   sync.Mutex
		errs error
	)
	group := c.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, date := range dates {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			outcome, err := c.ensure(groupCtx, date)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return
			}
			outcomes.Store(schema.FormatDate(date), outcome)
		})
	}
	if werr := group.Wait(); werr != nil && !errors.Is(werr, pond.ErrGroupStopped) {
		errs = multierr.Append(errs, werr)
	}
	if errs == nil && ctx.Err() != nil {
		errs = ctx.Err()
	}

	for _, date := range dates {
		outcome, ok := outcomes.Load(schema.FormatDate(date))
		if !ok {
			continue
		}
		switch outcome {
		case outcomeAvailable:
			result.Available = append(result.Available, date)
		case outcomeFetched:
			result.Available = append(result.Available, date)
			result.Fetched = append(result.Fetched, date)
		case outcomeUnavailable:
			result.Unavailable = append(result.Unavailable, date)
		}
	}

	c.logger.Info("ensured snapshot range",
		zap.String("min_date", schema.FormatDate(minDate)),
		zap.String("max_date", schema.FormatDate(maxDate)),
		zap.Int("available", len(result.Available)),
		zap.Int("fetched", len(result.Fetched)),
		zap.Int("unavailable", len(result.Unavailable)),
		zap.Int("failed", len(multierr.Errors(errs))))
	return result, errs
}

// ensure materializes one date and reports what it had to do.
func (c *SnapshotCache) ensure(ctx context.Context, date time.Time) (dateOutcome, error) {
	ok, err := c.Has(ctx, date)
	if err != nil {
		return 0, err
	}
	if ok {
		return outcomeAvailable, nil
	}
	if _, err := c.GetSnapshot(ctx, date); err != nil {
		if schema.IsNotAvailable(err) {
			c.logger.Info("no scores published", zap.String("date", schema.FormatDate(date)))
			return outcomeUnavailable, nil
		}
		return 0, err
	}
	return outcomeFetched, nil
}

// newSnapshot stamps date on every score and sorts them by CVE. A CVE listed
// more than once fails with ErrDuplicateScore.
func newSnapshot(date time.Time, scores []schema.Score) (schema.Snapshot, error) {
	out := make([]schema.Score, len(scores))
	for i, s := range scores {
		s.Date = date
		out[i] = s
	}
	slices.SortFunc(out, func(a, b schema.Score) int {
		return strings.Compare(a.CVE, b.CVE)
	})
	for i := 1; i < len(out); i++ {
		if out[i].CVE == out[i-1].CVE {
			return schema.Snapshot{}, fmt.Errorf("%w for %s on %s", schema.ErrDuplicateScore, out[i].CVE, schema.FormatDate(date))
		}
	}
	return schema.Snapshot{Date: date, Scores: out}, nil
}
