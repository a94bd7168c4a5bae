package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huangsam/epss/schema"
	"go.uber.org/zap"
)

// RangeMode tells the resolver whether a single-date range is acceptable.
type RangeMode int

const (
	// AllowSingle accepts min == max.
	AllowSingle RangeMode = iota
	// RequireSpan rejects min == max, for callers that need at least one pair.
	RequireSpan
)

// DefaultLatestTTL is how long a looked-up latest date is trusted.
const DefaultLatestTTL = time.Hour

// LatestDateFunc returns the most recent published date.
type LatestDateFunc func(ctx context.Context) (time.Time, error)

// Resolver normalizes date bounds against the published range of a model era.
type Resolver struct {
	earliest time.Time
	latestFn LatestDateFunc
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	latest  time.Time
	checked time.Time
}

// NewResolver builds a resolver whose earliest date is the release of version.
func NewResolver(version schema.ModelVersion, latestFn LatestDateFunc, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		earliest: schema.EarliestDate(version),
		latestFn: latestFn,
		logger:   logger,
		ttl:      DefaultLatestTTL,
		now:      time.Now,
	}
}

// WithLatestTTL sets how long the latest date is reused before it is looked
// up again. A non-positive ttl keeps it for the life of the resolver.
func (r *Resolver) WithLatestTTL(ttl time.Duration) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = ttl
	return r
}

// Earliest returns the earliest valid date.
func (r *Resolver) Earliest() time.Time {
	return r.earliest
}

// Latest returns the latest published date. A looked-up date is reused until
// the TTL expires. If a refresh fails, the previous date is kept.
func (r *Resolver) Latest(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.latest.IsZero() && (r.ttl <= 0 || r.now().Sub(r.checked) < r.ttl) {
		return r.latest, nil
	}
	if r.latestFn == nil {
		return time.Time{}, fmt.Errorf("latest publication date is unknown")
	}
	latest, err := r.latestFn(ctx)
	if err != nil {
		if !r.latest.IsZero() {
			r.logger.Warn("keeping previous latest publication date",
				zap.String("latest", schema.FormatDate(r.latest)),
				zap.Error(err))
			return r.latest, nil
		}
		return time.Time{}, fmt.Errorf("failed to resolve latest publication date: %w", err)
	}
	if d := schema.Day(latest); !d.Equal(r.latest) && !r.latest.IsZero() {
		r.logger.Info("latest publication date advanced",
			zap.String("from", schema.FormatDate(r.latest)),
			zap.String("to", schema.FormatDate(d)))
	}
	r.latest = schema.Day(latest)
	r.checked = r.now()
	return r.latest, nil
}

// Check returns date truncated to the day, or an InvalidRangeError when it is
// outside [earliest, latest].
func (r *Resolver) Check(ctx context.Context, date time.Time) (time.Time, error) {
	latest, err := r.Latest(ctx)
	if err != nil {
		return time.Time{}, err
	}
	d := schema.Day(date)
	if d.Before(r.earliest) || d.After(latest) {
		return d, &schema.InvalidRangeError{
			Min:    r.earliest,
			Max:    latest,
			Reason: fmt.Sprintf("%s is outside the published range", schema.FormatDate(d)),
		}
	}
	return d, nil
}

// Bounds returns the full valid range.
func (r *Resolver) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	return r.Resolve(ctx, nil, nil, AllowSingle)
}

// Resolve fills in missing bounds and clamps supplied ones to [earliest, latest].
// Clamping is logged, not rejected. An inverted range after clamping, or a
// single-date range under RequireSpan, yields an InvalidRangeError.
func (r *Resolver) Resolve(ctx context.Context, minDate, maxDate *time.Time, mode RangeMode) (time.Time, time.Time, error) {
	latest, err := r.Latest(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	lo, hi := r.earliest, latest
	if minDate != nil {
		lo = r.clamp("min", schema.Day(*minDate), latest)
	}
	if maxDate != nil {
		hi = r.clamp("max", schema.Day(*maxDate), latest)
	}

	if lo.After(hi) {
		return lo, hi, &schema.InvalidRangeError{Min: lo, Max: hi, Reason: "min date is after max date"}
	}
	if mode == RequireSpan && lo.Equal(hi) {
		return lo, hi, &schema.InvalidRangeError{Min: lo, Max: hi, Reason: "at least two dates are required"}
	}
	return lo, hi, nil
}

// Dates returns every calendar date in [minDate, maxDate].
func (r *Resolver) Dates(minDate, maxDate time.Time) []time.Time {
	return schema.DatesInRange(minDate, maxDate)
}

func (r *Resolver) clamp(bound string, d, latest time.Time) time.Time {
	switch {
	case d.Before(r.earliest):
		r.logger.Info("clamping date to earliest publication date",
			zap.String("bound", bound),
			zap.String("requested", schema.FormatDate(d)),
			zap.String("clamped", schema.FormatDate(r.earliest)))
		return r.earliest
	case d.After(latest):
		r.logger.Info("clamping date to latest publication date",
			zap.String("bound", bound),
			zap.String("requested", schema.FormatDate(d)),
			zap.String("clamped", schema.FormatDate(latest)))
		return latest
	}
	return d
}
