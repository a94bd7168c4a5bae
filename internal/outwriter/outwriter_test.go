package outwriter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(output schema.OutputMode) *contract.Config {
	return &contract.Config{
		Output:       output,
		Precision:    5,
		Width:        200,
		Workers:      4,
		CacheBackend: schema.SQLiteBackend,
		ModelVersion: schema.ModelV3,
	}
}

func sampleRecords() []schema.ChangeRecord {
	return []schema.ChangeRecord{
		{
			CVE:                "CVE-2024-0001",
			Date:               schema.MustParseDate("2024-01-02"),
			OldDate:            schema.MustParseDate("2024-01-01"),
			OldEPSS:            0.1,
			NewEPSS:            0.12,
			EPSSDelta:          0.02,
			EPSSDeltaPct:       schema.Float(20),
			OldPercentile:      0.5,
			NewPercentile:      0.55,
			PercentileDelta:    0.05,
			PercentileDeltaPct: schema.Float(10),
		},
		{
			CVE:             "CVE-2024-0002",
			Date:            schema.MustParseDate("2024-01-02"),
			OldDate:         schema.MustParseDate("2024-01-01"),
			NewEPSS:         0.001,
			EPSSDelta:       0.001,
			NewPercentile:   0.2,
			PercentileDelta: 0.2,
		},
	}
}

func TestWriteChangeRecords(t *testing.T) {
	tests := []struct {
		name   string
		output schema.OutputMode
		check  func(t *testing.T, out string)
	}{
		{
			name:   "csv renders undefined percentages as empty cells",
			output: schema.CSVOut,
			check: func(t *testing.T, out string) {
				lines := strings.Split(strings.TrimSpace(out), "\n")
				require.Len(t, lines, 3)
				assert.Equal(t, strings.Join(changeHeader, ","), lines[0])
				assert.Equal(t, "CVE-2024-0001,2024-01-02,2024-01-01,0.10000,0.12000,0.02000,20.00,0.50000,0.55000,0.05000,10.00", lines[1])
				assert.Equal(t, "CVE-2024-0002,2024-01-02,2024-01-01,0.00000,0.00100,0.00100,,0.00000,0.20000,0.20000,", lines[2])
			},
		},
		{
			name:   "json renders undefined percentages as null",
			output: schema.JSONOut,
			check: func(t *testing.T, out string) {
				var rows []map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &rows))
				require.Len(t, rows, 2)
				assert.Equal(t, "2024-01-02", rows[0]["date"])
				assert.Equal(t, 20.0, rows[0]["epss_delta_pct"])
				assert.Contains(t, rows[1], "epss_delta_pct")
				assert.Nil(t, rows[1]["epss_delta_pct"])
			},
		},
		{
			name:   "jsonl writes one object per line",
			output: schema.JSONLOut,
			check: func(t *testing.T, out string) {
				lines := strings.Split(strings.TrimSpace(out), "\n")
				require.Len(t, lines, 2)
				for _, line := range lines {
					var row map[string]any
					require.NoError(t, json.Unmarshal([]byte(line), &row))
					assert.Equal(t, "2024-01-01", row["old_date"])
				}
			},
		},
		{
			name:   "text table",
			output: schema.TextOut,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "CVE-2024-0001")
				assert.Contains(t, out, "+0.02000 ▲")
				assert.Contains(t, out, "0.55000", "wide terminals show percentile columns")
				assert.Contains(t, out, "Showing 2 changes for 2 CVEs across 1 dates")
				assert.Contains(t, out, "with 4 workers")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteChangeRecords(&buf, sampleRecords(), testConfig(tt.output), time.Second))
			tt.check(t, buf.String())
		})
	}
}

func TestWriteChangeRecords_NarrowTerminal(t *testing.T) {
	cfg := testConfig(schema.TextOut)
	cfg.Width = 80

	var buf bytes.Buffer
	require.NoError(t, WriteChangeRecords(&buf, sampleRecords(), cfg, 0))
	out := buf.String()
	assert.Contains(t, out, "0.12000")
	assert.NotContains(t, out, "0.55000")
	assert.NotContains(t, out, "Completed in", "no timing line without a duration")
}

func TestWriteScoreRows(t *testing.T) {
	scores := []schema.Score{
		{CVE: "CVE-2024-0001", Date: schema.MustParseDate("2024-01-02"), EPSS: 0.97, Percentile: 0.999},
		{CVE: "CVE-2024-0002", Date: schema.MustParseDate("2024-01-02"), EPSS: 0.00043, Percentile: 0.05},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteScoreRows(&buf, scores, testConfig(schema.CSVOut), 0))
	assert.Equal(t, "cve,date,epss,percentile\nCVE-2024-0001,2024-01-02,0.97000,0.99900\nCVE-2024-0002,2024-01-02,0.00043,0.05000\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteScoreRows(&buf, scores, testConfig(schema.JSONOut), 0))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 0.97, rows[0]["epss"])

	buf.Reset()
	require.NoError(t, WriteScoreRows(&buf, scores, testConfig(schema.TextOut), 0))
	assert.Contains(t, buf.String(), "Showing 2 scores")
}

func TestWriteScoreRanges(t *testing.T) {
	ranges := []schema.ScoreRange{{
		CVE:           "CVE-2024-0001",
		MinDate:       schema.MustParseDate("2024-01-01"),
		MaxDate:       schema.MustParseDate("2024-01-03"),
		MinEPSS:       0.05,
		MaxEPSS:       0.2,
		MinPercentile: 0.3,
		MaxPercentile: 0.6,
		Changes:       2,

		EPSSChange:       0.15,
		EPSSChangePct:    schema.Float(300),
		PercentileChange: 0.3,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteScoreRanges(&buf, ranges, testConfig(schema.JSONLOut), 0))
	assert.Equal(t, `{"cve":"CVE-2024-0001","min_date":"2024-01-01","max_date":"2024-01-03","min_epss":0.05,"max_epss":0.2,"min_percentile":0.3,"max_percentile":0.6,"changes":2,`+
		`"epss_change":0.15,"epss_change_pct":300,"percentile_change":0.3,"percentile_change_pct":null}`+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteScoreRanges(&buf, ranges, testConfig(schema.CSVOut), 0))
	assert.Contains(t, buf.String(), "cve,min_date,max_date,min_epss,max_epss,min_percentile,max_percentile,changes,epss_change,epss_change_pct,percentile_change,percentile_change_pct\n")
	assert.Contains(t, buf.String(), "CVE-2024-0001,2024-01-01,2024-01-03,0.05000,0.20000,0.30000,0.60000,2,0.15000,300.00,0.30000,\n")

	buf.Reset()
	require.NoError(t, WriteScoreRanges(&buf, ranges, testConfig(schema.TextOut), 0))
	assert.Contains(t, buf.String(), "Showing 1 CVEs")
}

func TestWriteDateList(t *testing.T) {
	dates := []time.Time{schema.MustParseDate("2024-01-01"), schema.MustParseDate("2024-01-03")}

	tests := []struct {
		output schema.OutputMode
		want   string
	}{
		{schema.TextOut, "2024-01-01\n2024-01-03\n"},
		{schema.CSVOut, "date\n2024-01-01\n2024-01-03\n"},
		{schema.JSONLOut, `{"date":"2024-01-01"}` + "\n" + `{"date":"2024-01-03"}` + "\n"},
		{schema.JSONOut, "[\n  \"2024-01-01\",\n  \"2024-01-03\"\n]\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.output), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteDateList(&buf, dates, testConfig(tt.output)))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteFileDateRangeResult(t *testing.T) {
	dates := []time.Time{schema.MustParseDate("2024-01-01"), schema.MustParseDate("2024-01-02"), schema.MustParseDate("2024-01-03")}

	var buf bytes.Buffer
	require.NoError(t, WriteFileDateRangeResult(&buf, "scores.parquet", dates, testConfig(schema.TextOut)))
	assert.Equal(t, "scores.parquet: 2024-01-01 to 2024-01-03\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteFileDateRangeResult(&buf, "scores.parquet", dates, testConfig(schema.CSVOut)))
	assert.Equal(t, "file,min_date,max_date\nscores.parquet,2024-01-01,2024-01-03\n", buf.String())

	assert.ErrorContains(t, WriteFileDateRangeResult(&buf, "empty.csv", nil, testConfig(schema.TextOut)), "no dated rows")
}

func TestWriteDateRangeResult(t *testing.T) {
	lo := schema.MustParseDate(schema.V3ReleaseDate)
	hi := schema.MustParseDate("2024-06-30")

	var buf bytes.Buffer
	require.NoError(t, WriteDateRangeResult(&buf, lo, hi, testConfig(schema.TextOut)))
	assert.Equal(t, "Model v3: 2023-03-07 to 2024-06-30\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteDateRangeResult(&buf, lo, hi, testConfig(schema.CSVOut)))
	assert.Equal(t, "model_version,min_date,max_date\nv3,2023-03-07,2024-06-30\n", buf.String())
}

func TestWriteInitReport(t *testing.T) {
	report := schema.InitReport{
		MinDate: schema.MustParseDate("2024-01-01"),
		MaxDate: schema.MustParseDate("2024-01-03"),
		Snapshots: schema.EnsureResult{
			Available:   []time.Time{schema.MustParseDate("2024-01-01"), schema.MustParseDate("2024-01-03")},
			Fetched:     []time.Time{schema.MustParseDate("2024-01-03")},
			Unavailable: []time.Time{schema.MustParseDate("2024-01-02")},
		},
		Changes: 7,
		Partitions: map[schema.PartitionKey]schema.PartitionResult{
			schema.PartitionByCVE: {Written: []string{"a", "b"}, Skipped: []string{"c"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInitReport(&buf, report, testConfig(schema.TextOut), 0))
	assert.Equal(t, strings.Join([]string{
		"Initialized 2024-01-01 to 2024-01-03",
		"Snapshots: 2 available, 1 fetched, 1 unpublished",
		"Changes: 7",
		"Partitions by cve: 2 written, 1 skipped",
	}, "\n")+"\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteInitReport(&buf, report, testConfig(schema.JSONOut), 0))
	var row map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &row))
	assert.Equal(t, []any{"2024-01-02"}, row["unavailable"])
	assert.Equal(t, 7.0, row["changes"])
}

func TestWriteClearResult(t *testing.T) {
	removed := map[string]int{schema.SnapshotsDir: 3, schema.ChangelogsByCVEDir: 1}

	var buf bytes.Buffer
	require.NoError(t, WriteClearResult(&buf, removed, testConfig(schema.TextOut)))
	assert.Equal(t, "Removed 1 entries from changelogs-by-cve\nRemoved 3 entries from raw-scores-by-date\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteClearResult(&buf, map[string]int{}, testConfig(schema.TextOut)))
	assert.Equal(t, "Nothing to clear\n", buf.String())
}

func TestWriteCacheStatus(t *testing.T) {
	status := schema.CacheStatus{Backend: "memory", Connected: true, TotalEntries: 2}

	var buf bytes.Buffer
	require.NoError(t, WriteCacheStatus(&buf, status, testConfig(schema.TextOut)))
	assert.Contains(t, buf.String(), "Cache Backend: memory")

	buf.Reset()
	require.NoError(t, WriteCacheStatus(&buf, status, testConfig(schema.JSONOut)))
	assert.Contains(t, buf.String(), `"total_entries": 2`)
}

func TestOutWriter_WritesToFile(t *testing.T) {
	cfg := testConfig(schema.CSVOut)
	cfg.OutputFile = filepath.Join(t.TempDir(), "changes.csv")

	require.NoError(t, NewOutWriter().WriteChanges(sampleRecords(), cfg, 0))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "cve,date,old_date"))
}
