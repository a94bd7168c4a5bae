package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/huangsam/epss/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BuildOptions controls how a changelog is assembled.
type BuildOptions struct {
	// Query filters the output. Cached per-date changelogs are never filtered.
	Query *schema.Query

	// PreserveOrder processes pairs one at a time so the output is sorted by
	// (date, cve). Otherwise pairs run on the pool and results are appended in
	// completion order.
	PreserveOrder bool
}

// ChangelogBuilder chains per-date diffs into a changelog over a date range.
type ChangelogBuilder struct {
	store     contract.BlobStore
	snapshots *SnapshotCache
	resolver  *Resolver
	format    schema.FileFormat
	pool      pond.Pool
	logger    *zap.Logger
	metrics   *Metrics

	flights singleflight.Group
}

// NewChangelogBuilder builds a changelog builder reading snapshots through snapshots.
func NewChangelogBuilder(store contract.BlobStore, snapshots *SnapshotCache, resolver *Resolver, format schema.FileFormat, pool pond.Pool, logger *zap.Logger, metrics *Metrics) *ChangelogBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &ChangelogBuilder{
		store:     store,
		snapshots: snapshots,
		resolver:  resolver,
		format:    format,
		pool:      pool,
		logger:    logger,
		metrics:   metrics,
	}
}

// Key returns the cache key of the changelog ending on date.
func (b *ChangelogBuilder) Key(date time.Time) string {
	return contract.CacheKey(schema.ChangelogsByDateDir, schema.FormatDate(date), b.format)
}

// LinkKey returns the key holding the date the changelog ending on date was
// diffed against.
func (b *ChangelogBuilder) LinkKey(date time.Time) string {
	return schema.ChangelogLinksDir + "/" + schema.FormatDate(date)
}

// Pair returns the unfiltered changes between older and newer. The changelog
// cached for newer is reused only when it was diffed against older; otherwise
// it is computed and cached again.
func (b *ChangelogBuilder) Pair(ctx context.Context, older, newer time.Time) ([]schema.ChangeRecord, error) {
	records, ok, err := b.cached(ctx, older, newer)
	if err != nil {
		return nil, err
	}
	if ok {
		b.metrics.cacheLookups.WithLabelValues("changelog", "hit").Inc()
		return records, nil
	}
	b.metrics.cacheLookups.WithLabelValues("changelog", "miss").Inc()

	key := b.Key(newer)
	return shared(ctx, &b.flights, key+"@"+schema.FormatDate(older), func(ctx context.Context) ([]schema.ChangeRecord, error) {
		records, ok, err := b.cached(ctx, older, newer)
		if err != nil || ok {
			return records, err
		}
		return b.compute(ctx, key, older, newer)
	})
}

// cached returns the changelog stored for newer if it was diffed against
// older. Without a recorded link the rows name their own predecessor, so an
// unlinked empty changelog is never trusted.
func (b *ChangelogBuilder) cached(ctx context.Context, older, newer time.Time) ([]schema.ChangeRecord, bool, error) {
	records, err := b.load(ctx, b.Key(newer))
	if errors.Is(err, contract.ErrBlobNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	prev, linked, err := b.predecessor(ctx, newer)
	if err != nil {
		return nil, false, err
	}
	valid := linked && prev.Equal(older)
	if !linked {
		valid = len(records) > 0
		for _, r := range records {
			valid = valid && r.OldDate.Equal(older)
		}
	}
	if !valid {
		b.metrics.cacheLookups.WithLabelValues("changelog", "stale").Inc()
		b.logger.Info("recomputing changelog cached against another date",
			zap.String("old_date", schema.FormatDate(older)),
			zap.String("date", schema.FormatDate(newer)))
		return nil, false, nil
	}
	return records, true, nil
}

// predecessor reads the link of the changelog ending on newer. A missing or
// unreadable link reports linked == false.
func (b *ChangelogBuilder) predecessor(ctx context.Context, newer time.Time) (prev time.Time, linked bool, err error) {
	key := b.LinkKey(newer)
	data, err := b.store.Get(ctx, key)
	if errors.Is(err, contract.ErrBlobNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &schema.CacheIOError{Op: "read", Key: key, Err: err}
	}
	prev, err = schema.ParseDate(strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false, nil
	}
	return prev, true, nil
}

func (b *ChangelogBuilder) load(ctx context.Context, key string) ([]schema.ChangeRecord, error) {
	data, err := b.store.Get(ctx, key)
	if errors.Is(err, contract.ErrBlobNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &schema.CacheIOError{Op: "read", Key: key, Err: err}
	}
	records, err := tablefile.DecodeChanges(b.format, data)
	if err != nil {
		return nil, &schema.CacheIOError{Op: "decode", Key: key, Err: err}
	}
	return records, nil
}

func (b *ChangelogBuilder) compute(ctx context.Context, key string, older, newer time.Time) ([]schema.ChangeRecord, error) {
	a, err := b.snapshots.GetSnapshot(ctx, older)
	if err != nil {
		return nil, err
	}
	c, err := b.snapshots.GetSnapshot(ctx, newer)
	if err != nil {
		return nil, err
	}

	records := Diff(a, c)
	data, err := tablefile.EncodeChanges(b.format, records)
	if err != nil {
		return nil, &schema.CacheIOError{Op: "encode", Key: key, Err: err}
	}
	if err := b.store.Put(ctx, key, data); err != nil {
		return nil, &schema.CacheIOError{Op: "write", Key: key, Err: err}
	}
	linkKey := b.LinkKey(newer)
	if err := b.store.Put(ctx, linkKey, []byte(schema.FormatDate(older))); err != nil {
		return nil, &schema.CacheIOError{Op: "write", Key: linkKey, Err: err}
	}

	b.logger.Debug("cached changelog",
		zap.String("old_date", schema.FormatDate(older)),
		zap.String("date", schema.FormatDate(newer)),
		zap.Int("changes", len(records)))
	return records, nil
}

// Build returns the changes between every adjacent pair of dates. Pairs where
// either snapshot was never published are skipped. Other failures are returned
// together after every pair has finished.
func (b *ChangelogBuilder) Build(ctx context.Context, dates []time.Time, opts BuildOptions) (out []schema.ChangeRecord, err error) {
	ctx, span := b.metrics.tracer.Start(ctx, "ChangelogBuilder.Build")
	span.SetAttributes(
		attribute.Int("dates", len(dates)),
		attribute.Bool("preserve_order", opts.PreserveOrder))
	defer func() { endSpan(span, err) }()

	if len(dates) < 2 {
		return nil, nil
	}
	if opts.PreserveOrder {
		return b.buildSequential(ctx, dates, opts)
	}
	return b.buildConcurrent(ctx, dates, opts)
}

func (b *ChangelogBuilder) buildSequential(ctx context.Context, dates []time.Time, opts BuildOptions) ([]schema.ChangeRecord, error) {
	var (
		out  []schema.ChangeRecord
		errs error
	)
	for i := 1; i < len(dates); i++ {
		if err := ctx.Err(); err != nil {
			return out, multierr.Append(errs, err)
		}
		records, err := b.pairRecords(ctx, dates[i-1], dates[i], opts)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, records...)
	}
	return out, errs
}

func (b *ChangelogBuilder) buildConcurrent(ctx context.Context, dates []time.Time, opts BuildOptions) ([]schema.ChangeRecord, error) {
	results := make(chan []schema.ChangeRecord, len(dates)-1)

	var (
		mu   sync.Mutex
		errs error
	)
	group := b.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := 1; i < len(dates); i++ {
		older, newer := dates[i-1], dates[i]
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			records, err := b.pairRecords(groupCtx, older, newer, opts)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return
			}
			results <- records
		})
	}
	if werr := group.Wait(); werr != nil && !errors.Is(werr, pond.ErrGroupStopped) {
		errs = multierr.Append(errs, werr)
	}
	close(results)

	var out []schema.ChangeRecord
	for records := range results {
		out = append(out, records...)
	}
	if errs == nil && ctx.Err() != nil {
		errs = ctx.Err()
	}
	return out, errs
}

// pairRecords returns the filtered changes of one pair, or nothing when a
// snapshot of the pair was never published.
func (b *ChangelogBuilder) pairRecords(ctx context.Context, older, newer time.Time, opts BuildOptions) ([]schema.ChangeRecord, error) {
	records, err := b.Pair(ctx, older, newer)
	if err != nil {
		if schema.IsNotAvailable(err) {
			b.metrics.pairs.WithLabelValues("skipped").Inc()
			b.logger.Info("skipping unpublished date pair",
				zap.String("old_date", schema.FormatDate(older)),
				zap.String("date", schema.FormatDate(newer)),
				zap.Error(err))
			return nil, nil
		}
		b.metrics.pairs.WithLabelValues("error").Inc()
		return nil, err
	}
	b.metrics.pairs.WithLabelValues("ok").Inc()
	if opts.Query != nil && !opts.Query.IsEmpty() {
		records = FilterChanges(records, *opts.Query)
	}
	return records, nil
}

// BuildRange resolves [minDate, maxDate], materializes every snapshot in it
// and chains the changelog over the dates that were published.
func (b *ChangelogBuilder) BuildRange(ctx context.Context, minDate, maxDate *time.Time, opts BuildOptions) ([]schema.ChangeRecord, error) {
	lo, hi, err := b.resolver.Resolve(ctx, minDate, maxDate, RequireSpan)
	if err != nil {
		return nil, err
	}
	ensured, err := b.snapshots.EnsureRange(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	return b.Build(ctx, ensured.Available, opts)
}
