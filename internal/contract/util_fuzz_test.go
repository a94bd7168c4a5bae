package contract

import (
	"strings"
	"testing"
)

// FuzzSplitList fuzzes SplitList with random comma-separated input.
func FuzzSplitList(f *testing.F) {
	seeds := []string{
		"CVE-2024-0001,CVE-2024-0002",
		" , ,",
		"",
		"cve,date",
		"ünïcödé,ß",
	}
	for _, seed := range seeds {
		f.Add(seed, true)
		f.Add(seed, false)
	}

	f.Fuzz(func(t *testing.T, input string, upper bool) {
		for _, part := range SplitList(input, upper) {
			if part == "" || strings.Contains(part, ",") {
				t.Fatalf("SplitList(%q) produced invalid part %q", input, part)
			}
			if part != strings.TrimSpace(part) {
				t.Fatalf("SplitList(%q) produced untrimmed part %q", input, part)
			}
		}
	})
}
