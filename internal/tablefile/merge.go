package tablefile

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/huangsam/epss/schema"
)

// tableFiles lists the table files directly under dir in name order. Entries
// without a supported extension are skipped, as is exclude.
func tableFiles(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	excludeAbs, _ := filepath.Abs(exclude)

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if _, err := schema.FormatFromName(p); err != nil {
			continue
		}
		if abs, _ := filepath.Abs(p); abs == excludeAbs {
			continue
		}
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths, nil
}

// MergeDir concatenates every table file directly under dir into dst, in file
// name order. Score files without a date column take the date in their name.
// It returns the number of rows written.
func MergeDir(dir, dst string, table Table) (int, error) {
	paths, err := tableFiles(dir, dst)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no table files found in %s", dir)
	}

	switch table {
	case ScoresTable:
		var all []schema.Score
		for _, p := range paths {
			scores, err := ReadScoresFile(p)
			if err != nil {
				return 0, fmt.Errorf("failed to read %s: %w", p, err)
			}
			all = append(all, scores...)
		}
		return len(all), WriteScoresFile(dst, all)
	case ChangesTable:
		var all []schema.ChangeRecord
		for _, p := range paths {
			records, err := ReadChangesFile(p)
			if err != nil {
				return 0, fmt.Errorf("failed to read %s: %w", p, err)
			}
			all = append(all, records...)
		}
		return len(all), WriteChangesFile(dst, all)
	default:
		return 0, fmt.Errorf("invalid table '%s'. must be scores or changes", table)
	}
}

// FileDates returns the distinct row dates of the table at path in ascending
// order. Change tables are dated by the newer date of each pair.
func FileDates(path string, table Table) ([]time.Time, error) {
	var dates []time.Time
	switch table {
	case ScoresTable:
		scores, err := ReadScoresFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for _, s := range scores {
			dates = append(dates, s.Date)
		}
	case ChangesTable:
		records, err := ReadChangesFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for _, r := range records {
			dates = append(dates, r.Date)
		}
	default:
		return nil, fmt.Errorf("invalid table '%s'. must be scores or changes", table)
	}

	slices.SortFunc(dates, time.Time.Compare)
	return slices.CompactFunc(dates, time.Time.Equal), nil
}
