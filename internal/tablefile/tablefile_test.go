package tablefile

import (
	"path/filepath"
	"testing"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScores() []schema.Score {
	d := schema.MustParseDate("2024-01-02")
	return []schema.Score{
		{CVE: "CVE-2024-0001", Date: d, EPSS: 0.1, Percentile: 0.5},
		{CVE: "CVE-2024-0002", Date: d, EPSS: 0.00042, Percentile: 0.91234},
	}
}

func testChanges() []schema.ChangeRecord {
	return []schema.ChangeRecord{
		{
			CVE: "CVE-2024-0001", Date: schema.MustParseDate("2024-01-02"), OldDate: schema.MustParseDate("2024-01-01"),
			OldEPSS: 0.1, NewEPSS: 0.12, EPSSDelta: 0.02, EPSSDeltaPct: schema.Float(20),
			OldPercentile: 0.5, NewPercentile: 0.55, PercentileDelta: 0.05, PercentileDeltaPct: schema.Float(10),
		},
		{
			CVE: "CVE-2024-0002", Date: schema.MustParseDate("2024-01-02"), OldDate: schema.MustParseDate("2024-01-01"),
			OldEPSS: 0, NewEPSS: 0.3, EPSSDelta: 0.3,
			OldPercentile: 0, NewPercentile: 0.7, PercentileDelta: 0.7,
		},
	}
}

func TestScoresRoundTrip(t *testing.T) {
	for _, format := range schema.AllFileFormats {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeScores(format, testScores())
			require.NoError(t, err)
			require.NotEmpty(t, data)

			got, err := DecodeScores(format, data, "")
			require.NoError(t, err)
			assert.Equal(t, testScores(), got)
		})
	}
}

func TestChangesRoundTrip(t *testing.T) {
	for _, format := range schema.AllFileFormats {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeChanges(format, testChanges())
			require.NoError(t, err)

			got, err := DecodeChanges(format, data)
			require.NoError(t, err)
			assert.Equal(t, testChanges(), got)
		})
	}
}

func TestEncodeChanges_UndefinedPercent(t *testing.T) {
	csvData, err := EncodeChanges(schema.CSVFormat, testChanges()[1:])
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "0.3,,0,0.7,0.7,\n", "undefined percent is an empty cell")

	jsonData, err := EncodeChanges(schema.JSONLFormat, testChanges()[1:])
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"epss_delta_pct":null`)
	assert.Contains(t, string(jsonData), `"percentile_delta_pct":null`)
}

func TestDecodeScores_PublishedCSV(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []schema.Score
	}{
		{
			name: "model version comment",
			data: "#model_version:v2023.03.01,score_date:2024-01-02T00:00:00+0000\n" +
				"cve,epss,percentile\n" +
				"CVE-1999-0001,0.01141,0.83459\n",
			want: []schema.Score{
				{CVE: "CVE-1999-0001", Date: schema.MustParseDate("2024-01-02"), EPSS: 0.01141, Percentile: 0.83459},
			},
		},
		{
			name: "oldest layout without percentile",
			data: "cve,epss\nCVE-2021-0001,0.5\n",
			want: []schema.Score{
				{CVE: "CVE-2021-0001", Date: schema.MustParseDate("2024-01-02"), EPSS: 0.5, Percentile: 0},
			},
		},
		{
			name: "column order is irrelevant",
			data: "percentile,cve,epss\n0.2,CVE-2022-0001,0.3\n",
			want: []schema.Score{
				{CVE: "CVE-2022-0001", Date: schema.MustParseDate("2024-01-02"), EPSS: 0.3, Percentile: 0.2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeScores(schema.CSVFormat, []byte(tt.data), "raw-scores-by-date/2024-01-02.csv")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeScores_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format schema.FileFormat
		data   string
		key    string
	}{
		{"missing epss column", schema.CSVFormat, "cve,percentile\nCVE-1,0.1\n", "2024-01-02.csv"},
		{"bad float", schema.CSVFormat, "cve,epss\nCVE-1,abc\n", "2024-01-02.csv"},
		{"no date anywhere", schema.CSVFormat, "cve,epss\nCVE-1,0.1\n", "scores.csv"},
		{"bad json", schema.JSONFormat, "{", "2024-01-02.json"},
		{"not gzip", schema.CSVGzFormat, "cve,epss\n", "2024-01-02.csv.gz"},
		{"unknown format", schema.FileFormat("xlsx"), "", "2024-01-02.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeScores(tt.format, []byte(tt.data), tt.key)
			assert.Error(t, err)
		})
	}
}

func TestDecodeScores_MissingColumnSentinel(t *testing.T) {
	_, err := DecodeScores(schema.CSVFormat, []byte("id,score\n"), "2024-01-02.csv")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestDecodeScores_Empty(t *testing.T) {
	got, err := DecodeScores(schema.CSVFormat, nil, "2024-01-02.csv")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()

	scorePath := filepath.Join(dir, "2024-01-02.jsonl.gz")
	require.NoError(t, WriteScoresFile(scorePath, testScores()))
	scores, err := ReadScoresFile(scorePath)
	require.NoError(t, err)
	assert.Equal(t, testScores(), scores)

	changePath := filepath.Join(dir, "changes.parquet")
	require.NoError(t, WriteChangesFile(changePath, testChanges()))
	changes, err := ReadChangesFile(changePath)
	require.NoError(t, err)
	assert.Equal(t, testChanges(), changes)

	assert.Error(t, WriteScoresFile(filepath.Join(dir, "scores.txt"), testScores()))
	_, err = ReadScoresFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()

	src := filepath.Join(dir, "2024-01-02.csv.gz")
	require.NoError(t, WriteScoresFile(src, testScores()))
	dst := filepath.Join(dir, "2024-01-02.parquet")
	n, err := ConvertFile(src, dst, ScoresTable)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	scores, err := ReadScoresFile(dst)
	require.NoError(t, err)
	assert.Equal(t, testScores(), scores)

	src = filepath.Join(dir, "changes.json")
	require.NoError(t, WriteChangesFile(src, testChanges()))
	dst = filepath.Join(dir, "changes.csv")
	n, err = ConvertFile(src, dst, ChangesTable)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	changes, err := ReadChangesFile(dst)
	require.NoError(t, err)
	assert.Equal(t, testChanges(), changes)

	_, err = ConvertFile(src, dst, Table("ranges"))
	assert.ErrorContains(t, err, "invalid table")
	_, err = ConvertFile(filepath.Join(dir, "missing.csv"), dst, ScoresTable)
	assert.Error(t, err)
}
