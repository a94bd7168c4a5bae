package schema

import (
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"
	"time"
)

// dateInNameRe finds an ISO-8601 date embedded in a file name.
var dateInNameRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// MustParseDate is ParseDate for constants known to be valid.
func MustParseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateFromName extracts the first YYYY-MM-DD substring of the base name of p.
func DateFromName(p string) (time.Time, bool) {
	m := dateInNameRe.FindString(path.Base(strings.ReplaceAll(p, "\\", "/")))
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DatesInRange returns every calendar date in [minDate, maxDate].
func DatesInRange(minDate, maxDate time.Time) []time.Time {
	minDate, maxDate = Day(minDate), Day(maxDate)
	if minDate.After(maxDate) {
		return nil
	}
	days := int(maxDate.Sub(minDate).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	for d := minDate; !d.After(maxDate); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// EarliestDate returns the first date published under the given model version.
func EarliestDate(version ModelVersion) time.Time {
	s, ok := ModelReleaseDates[version]
	if !ok {
		s = ModelReleaseDates[DefaultModelVersion]
	}
	return MustParseDate(s)
}

// Round rounds v to the package precision.
func Round(v float64) float64 {
	p := math.Pow10(Precision)
	return math.Round(v*p) / p
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// FileName returns the cache file name for a key and format.
func FileName(key string, format FileFormat) string {
	return key + "." + string(format)
}

// FormatFromName detects the file format from the extension of p.
func FormatFromName(p string) (FileFormat, error) {
	base := strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))
	// Compound extensions first so csv.gz is not read as gz.
	for _, f := range []FileFormat{CSVGzFormat, JSONLGzFormat, JSONGzFormat, JSONLFormat, JSONFormat, CSVFormat, ParquetFormat} {
		if strings.HasSuffix(base, "."+string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported file format for %q. must be one of %v", p, AllFileFormats)
}
