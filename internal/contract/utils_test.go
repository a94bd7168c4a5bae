package contract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectOutputFile(t *testing.T) {
	t.Run("empty path is stdout", func(t *testing.T) {
		f, err := SelectOutputFile("")
		require.NoError(t, err)
		assert.Equal(t, os.Stdout, f)
	})

	t.Run("path creates file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "out.csv")
		f, err := SelectOutputFile(p)
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		assert.Equal(t, p, f.Name())
	})
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		upper bool
		want  []string
	}{
		{"empty", "", false, nil},
		{"blanks only", " , ,", false, nil},
		{"keeps case", "cve, Date", false, []string{"cve", "Date"}},
		{"upper-cases ids", "cve-2024-1,CVE-2024-2 ", true, []string{"CVE-2024-1", "CVE-2024-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.input, tt.upper))
		})
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "raw-scores-by-date/2024-01-01.csv.gz", CacheKey(schema.SnapshotsDir, "2024-01-01", schema.CSVGzFormat))
}

func TestCachePaths(t *testing.T) {
	assert.Equal(t, filepath.Join("work", "epss_cache.db"), GetCacheDBFilePath("work"))
	assert.Equal(t, filepath.Join("work", "badger"), GetBadgerDir("work"))
	assert.NotEmpty(t, GetDefaultWorkDir())
}

func TestParseBoolString(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"yes", true, false},
		{"TRUE", true, false},
		{"1", true, false},
		{"no", false, false},
		{"False", false, false},
		{"0", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBoolString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud")
	assert.Error(t, err)
}
