package imagecompare

import (
	"fmt"

	"github.com/muesli/termenv"
)

// Report formats a one-line verdict. Failures are red and exact matches
// green when the profile supports color.
func Report(p termenv.Profile, aFN, bFN string, r *Result, threshold float64) string {
	line := fmt.Sprintf("%q vs %q: %d (%.3f%%)", aFN, bFN, r.Sum, r.Percent())
	switch {
	case r.Over(threshold):
		return termenv.String("FAIL " + line).Foreground(p.Color("1")).String()
	case r.Identical():
		return termenv.String(line).Foreground(p.Color("2")).String()
	}
	return line
}
