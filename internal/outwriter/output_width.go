package outwriter

import (
	"os"

	"github.com/huangsam/epss/internal/contract"
	"golang.org/x/term"
)

// wideTableWidth is the narrowest terminal that fits the percentile columns
// of the change table.
const wideTableWidth = 120

// GetTermWidth returns the width override from the config, the detected
// terminal width, or 80 when neither is available.
func GetTermWidth(cfg *contract.Config) int {
	if cfg.Width > 0 {
		return cfg.Width
	}
	detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || detectedWidth <= 0 {
		// Conservative default for narrow terminals and CI
		return 80
	}
	return detectedWidth
}

// showPercentileColumns reports whether the change table has room for the
// percentile columns.
func showPercentileColumns(cfg *contract.Config) bool {
	return GetTermWidth(cfg) >= wideTableWidth
}
