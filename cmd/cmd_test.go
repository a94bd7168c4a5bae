package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseDatePair(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "valid", args: []string{"2024-01-01", "2024-01-08"}},
		{name: "bad older", args: []string{"01/01/2024", "2024-01-08"}, wantErr: "invalid older date"},
		{name: "bad newer", args: []string{"2024-01-01", "next week"}, wantErr: "invalid newer date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			older, newer, err := parseDatePair(tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, schema.MustParseDate(tt.args[0]), older)
			assert.Equal(t, schema.MustParseDate(tt.args[1]), newer)
		})
	}
}

func TestCommandsEndToEnd(t *testing.T) {
	d1 := schema.MustParseDate("2024-01-01")
	d2 := schema.MustParseDate("2024-01-02")

	src := &contract.MockScoreSource{}
	src.On("LatestDate", mock.Anything).Return(d2, nil)
	src.On("Fetch", mock.Anything, d1).Return([]schema.Score{
		{CVE: "CVE-2024-0001", EPSS: 0.10, Percentile: 0.50},
	}, nil)
	src.On("Fetch", mock.Anything, d2).Return([]schema.Score{
		{CVE: "CVE-2024-0001", EPSS: 0.12, Percentile: 0.55},
	}, nil)

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetStore").Return(iocache.NewMemoryStore())

	SetScoreSource(src)
	SetCacheManager(mgr)
	t.Cleanup(func() {
		CloseEngine()
		SetScoreSource(nil)
		SetCacheManager(nil)
		engine = nil
	})

	dir := t.TempDir()
	out := filepath.Join(dir, "diff.csv")
	rootCmd.SetArgs([]string{
		"diff", "2024-01-01", "2024-01-02",
		"--cache-backend", "none",
		"--workdir", dir,
		"--output", "csv",
		"--output-file", out,
		"--metrics-file", filepath.Join(dir, "metrics.prom"),
		"--trace-file", filepath.Join(dir, "trace.jsonl"),
	})
	require.NoError(t, Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CVE-2024-0001,2024-01-02,2024-01-01,0.10000,0.12000,0.02000,20.00")

	metrics, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `epss_snapshot_fetches_total{outcome="ok"} 2`)

	trace, err := os.ReadFile(filepath.Join(dir, "trace.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(trace), "SnapshotCache.fetch")
}

func TestFileCommands(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.Mkdir(in, 0o755))
	for _, date := range []string{"2024-01-02", "2024-01-01"} {
		d := schema.MustParseDate(date)
		require.NoError(t, tablefile.WriteScoresFile(filepath.Join(in, date+".csv"), []schema.Score{
			{CVE: "CVE-2024-0001", Date: d, EPSS: 0.1, Percentile: 0.5},
		}))
	}
	merged := filepath.Join(dir, "merged.parquet")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "merge",
			args: []string{"merge", in, merged},
		},
		{
			name: "dates",
			args: []string{"dates", merged, "--output", "jsonl"},
			want: "{\"date\":\"2024-01-01\"}\n{\"date\":\"2024-01-02\"}\n",
		},
		{
			name: "date-range of a file",
			args: []string{"date-range", "--input-file", merged, "--output", "csv"},
			want: "file,min_date,max_date\n" + merged + ",2024-01-01,2024-01-02\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+".out")
			rootCmd.SetArgs(append(tt.args, "--output-file", out))
			require.NoError(t, Execute())
			if tt.want == "" {
				return
			}
			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}

	scores, err := tablefile.ReadScoresFile(merged)
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}
