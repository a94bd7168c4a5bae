// Package core has the snapshot cache, diff and changelog logic for EPSS scores.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	"github.com/huangsam/epss/schema"
	"go.uber.org/zap"
)

// Engine wires the resolver, caches, builder and views around one worker pool.
type Engine struct {
	Resolver   *Resolver
	Snapshots  *SnapshotCache
	Changelogs *ChangelogBuilder
	Partitions *Partitioner
	Ranges     *RangeView

	cfg     *contract.Config
	store   contract.BlobStore
	pool    pond.Pool
	logger  *zap.Logger
	metrics *Metrics
}

// NewEngine builds an engine over the store held by mgr.
func NewEngine(cfg *contract.Config, mgr contract.CacheManager, src contract.ScoreSource, logger *zap.Logger) (*Engine, error) {
	store := mgr.GetStore()
	if store == nil {
		return nil, fmt.Errorf("cache store is not initialized")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = contract.DefaultWorkers
	}

	metrics := NewMetrics()
	pool := pond.NewPool(workers)
	resolver := NewResolver(cfg.ModelVersion, src.LatestDate, logger)
	snapshots := NewSnapshotCache(store, src, cfg.FileFormat, pool, logger, metrics)
	changelogs := NewChangelogBuilder(store, snapshots, resolver, cfg.FileFormat, pool, logger, metrics)

	return &Engine{
		Resolver:   resolver,
		Snapshots:  snapshots,
		Changelogs: changelogs,
		Partitions: NewPartitioner(store, cfg.FileFormat, logger, metrics),
		Ranges:     NewRangeView(changelogs),
		cfg:        cfg,
		store:      store,
		pool:       pool,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Close waits for queued tasks and stops the pool.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// DateRange returns the full valid range of the configured model era.
func (e *Engine) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	return e.Resolver.Bounds(ctx)
}

// Init materializes every snapshot and changelog in the configured range and
// writes the configured partitions.
func (e *Engine) Init(ctx context.Context) (schema.InitReport, error) {
	var report schema.InitReport

	lo, hi, err := e.Resolver.Resolve(ctx, e.cfg.MinDate, e.cfg.MaxDate, AllowSingle)
	if err != nil {
		return report, err
	}
	report.MinDate, report.MaxDate = lo, hi

	report.Snapshots, err = e.Snapshots.EnsureRange(ctx, lo, hi)
	if err != nil {
		return report, err
	}

	// Partitions are written from the unfiltered changelog so the by-date
	// partitions stay identical to the per-date changelog cache.
	records, err := e.Changelogs.Build(ctx, report.Snapshots.Available, BuildOptions{PreserveOrder: e.cfg.PreserveOrder})
	if err != nil {
		return report, err
	}
	report.Changes = len(records)

	for _, key := range e.cfg.PartitionBy {
		res, err := e.Partitions.Partition(ctx, records, DirFor(key), key, e.cfg.Overwrite)
		if err != nil {
			return report, err
		}
		if report.Partitions == nil {
			report.Partitions = make(map[schema.PartitionKey]schema.PartitionResult)
		}
		report.Partitions[key] = res
	}
	return report, nil
}

// Changelog builds the changelog over the configured range and query.
func (e *Engine) Changelog(ctx context.Context) ([]schema.ChangeRecord, error) {
	q := e.cfg.Query
	records, err := e.Changelogs.BuildRange(ctx, e.cfg.MinDate, e.cfg.MaxDate, BuildOptions{
		Query:         &q,
		PreserveOrder: e.cfg.PreserveOrder,
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DiffDates compares the snapshots of two dates directly, without chaining
// through the dates in between. older must precede newer.
func (e *Engine) DiffDates(ctx context.Context, older, newer time.Time, q schema.Query) ([]schema.ChangeRecord, error) {
	lo, hi, err := e.Resolver.Resolve(ctx, &older, &newer, RequireSpan)
	if err != nil {
		return nil, err
	}
	a, err := e.Snapshots.GetSnapshot(ctx, lo)
	if err != nil {
		return nil, err
	}
	b, err := e.Snapshots.GetSnapshot(ctx, hi)
	if err != nil {
		return nil, err
	}
	return FilterChanges(Diff(a, b), q), nil
}

// Scores returns the filtered snapshot for date, or for the latest date when nil.
// A date outside the published range is an InvalidRangeError.
func (e *Engine) Scores(ctx context.Context, date *time.Time, q schema.Query) ([]schema.Score, error) {
	var (
		d   time.Time
		err error
	)
	if date == nil {
		d, err = e.Resolver.Latest(ctx)
	} else {
		d, err = e.Resolver.Check(ctx, *date)
	}
	if err != nil {
		return nil, err
	}
	snap, err := e.Snapshots.GetSnapshot(ctx, d)
	if err != nil {
		return nil, err
	}
	return ApplyQuery(snap.Scores, q), nil
}

// ScoreRanges summarizes the configured range per CVE of the configured query.
func (e *Engine) ScoreRanges(ctx context.Context) ([]schema.ScoreRange, error) {
	ranges, err := e.Ranges.SummarizeAll(ctx, e.cfg.MinDate, e.cfg.MaxDate, e.cfg.Query)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, &schema.NotFoundError{What: "score changes matching the query"}
	}
	return ranges, nil
}

// Clear deletes cached blobs by kind and returns how many were removed per directory.
func (e *Engine) Clear(ctx context.Context, snapshots, changelogs, partitions bool) (map[string]int, error) {
	var dirs []string
	if snapshots {
		dirs = append(dirs, schema.SnapshotsDir)
	}
	if changelogs {
		dirs = append(dirs, schema.ChangelogsByDateDir, schema.ChangelogLinksDir)
	}
	if partitions {
		dirs = append(dirs, schema.ChangelogsByCVEDir)
	}

	removed := make(map[string]int, len(dirs))
	for _, dir := range dirs {
		n, err := iocache.DeletePrefix(ctx, e.store, dir+"/")
		removed[dir] = n
		if err != nil {
			return removed, &schema.CacheIOError{Op: "delete", Key: dir, Err: err}
		}
		e.logger.Info("cleared cache directory", zap.String("dir", dir), zap.Int("removed", n))
	}
	return removed, nil
}
