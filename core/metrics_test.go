package core

import (
	"context"
	"errors"
	"testing"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans routes the spans of h into a recorder.
func recordSpans(t *testing.T, h *testHarness) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	h.metrics.WithTracerProvider(tp)
	return recorder
}

func spansNamed(spans []sdktrace.ReadOnlySpan, name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

func TestSpans_BuildRange(t *testing.T) {
	h := newHarness(t, threeDaySource(), schema.CSVFormat)
	recorder := recordSpans(t, h)

	_, err := h.changelogs.BuildRange(context.Background(), datePtr("2024-01-01"), datePtr("2024-01-03"), BuildOptions{})
	require.NoError(t, err)

	spans := recorder.Ended()
	ensure := spansNamed(spans, "SnapshotCache.EnsureRange")
	require.Len(t, ensure, 1)
	assert.Len(t, spansNamed(spans, "ChangelogBuilder.Build"), 1)

	fetches := spansNamed(spans, "SnapshotCache.fetch")
	require.Len(t, fetches, 3)
	for _, s := range fetches {
		assert.Equal(t, ensure[0].SpanContext().SpanID(), s.Parent().SpanID(), "fetches run under EnsureRange")
		assert.Equal(t, codes.Unset, s.Status().Code)
	}

	// Snapshots are cached now, so a second build fetches nothing.
	_, err = h.changelogs.BuildRange(context.Background(), datePtr("2024-01-01"), datePtr("2024-01-03"), BuildOptions{})
	require.NoError(t, err)
	assert.Len(t, spansNamed(recorder.Ended(), "SnapshotCache.fetch"), 3)
}

func TestSpans_FetchError(t *testing.T) {
	boom := errors.New("connection reset")
	h := newHarness(t, threeDaySource().failing("2024-01-02", boom), schema.CSVFormat)
	recorder := recordSpans(t, h)

	_, err := h.snapshots.GetSnapshot(context.Background(), schema.MustParseDate("2024-01-02"))
	require.ErrorIs(t, err, boom)

	fetches := spansNamed(recorder.Ended(), "SnapshotCache.fetch")
	require.Len(t, fetches, 1)
	assert.Equal(t, codes.Error, fetches[0].Status().Code)
	assert.Contains(t, fetches[0].Status().Description, "connection reset")
}
