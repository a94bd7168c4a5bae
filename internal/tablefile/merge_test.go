package tablefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoresOn(date string) []schema.Score {
	d := schema.MustParseDate(date)
	return []schema.Score{
		{CVE: "CVE-2024-0001", Date: d, EPSS: 0.1, Percentile: 0.5},
		{CVE: "CVE-2024-0002", Date: d, EPSS: 0.2, Percentile: 0.6},
	}
}

func TestMergeDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteScoresFile(filepath.Join(dir, "2024-01-02.parquet"), scoresOn("2024-01-02")))
	require.NoError(t, WriteScoresFile(filepath.Join(dir, "2024-01-01.csv.gz"), scoresOn("2024-01-01")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a table"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	dst := filepath.Join(dir, "merged.jsonl")
	n, err := MergeDir(dir, dst, ScoresTable)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	merged, err := ReadScoresFile(dst)
	require.NoError(t, err)
	assert.Equal(t, append(scoresOn("2024-01-01"), scoresOn("2024-01-02")...), merged, "files are merged in name order")

	// The output file is never merged into itself.
	n, err = MergeDir(dir, dst, ScoresTable)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMergeDir_Changes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteChangesFile(filepath.Join(dir, "2024-01-02.json"), testChanges()))
	require.NoError(t, WriteChangesFile(filepath.Join(dir, "2024-01-03.csv"), testChanges()[:1]))

	n, err := MergeDir(dir, filepath.Join(t.TempDir(), "all.parquet"), ChangesTable)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMergeDir_Errors(t *testing.T) {
	_, err := MergeDir(t.TempDir(), "out.csv", ScoresTable)
	assert.ErrorContains(t, err, "no table files found")

	_, err = MergeDir(filepath.Join(t.TempDir(), "missing"), "out.csv", ScoresTable)
	assert.ErrorContains(t, err, "failed to list")

	dir := t.TempDir()
	require.NoError(t, WriteScoresFile(filepath.Join(dir, "2024-01-01.csv"), scoresOn("2024-01-01")))
	_, err = MergeDir(dir, filepath.Join(dir, "out.csv"), Table("ranges"))
	assert.ErrorContains(t, err, "invalid table")
}

func TestFileDates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scores.csv")
	scores := append(scoresOn("2024-01-03"), scoresOn("2024-01-01")...)
	scores = append(scores, scoresOn("2024-01-03")...)
	require.NoError(t, WriteScoresFile(path, scores))

	dates, err := FileDates(path, ScoresTable)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{schema.MustParseDate("2024-01-01"), schema.MustParseDate("2024-01-03")}, dates)

	changePath := filepath.Join(dir, "changes.jsonl")
	require.NoError(t, WriteChangesFile(changePath, testChanges()))
	dates, err = FileDates(changePath, ChangesTable)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{schema.MustParseDate("2024-01-02")}, dates)

	_, err = FileDates(filepath.Join(dir, "missing.csv"), ScoresTable)
	assert.Error(t, err)
	_, err = FileDates(path, Table("ranges"))
	assert.ErrorContains(t, err, "invalid table")
}
