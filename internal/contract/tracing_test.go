package contract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	tracing, err := NewTracing(path, "test")
	require.NoError(t, err)

	_, span := tracing.Provider.Tracer("epss.test").Start(context.Background(), "unit.of.work")
	span.End()
	require.NoError(t, tracing.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"unit.of.work"`)
	assert.Contains(t, string(data), `"Value":"epss"`)
}

func TestNewTracing_BadPath(t *testing.T) {
	_, err := NewTracing(filepath.Join(t.TempDir(), "missing", "spans.json"), "test")
	assert.ErrorContains(t, err, "could not create trace file")
}
