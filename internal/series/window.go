// Package series holds pure helpers over price series.
package series

import (
	"sort"
	"time"

	"stocktrader/internal/model"
)

// AnalysisWindowDays is the trailing window sent to the analysis service
const AnalysisWindowDays = 365

// Sorted returns a copy of bars in ascending date order. The sort is stable,
// so bars sharing a date keep their input order.
func Sorted(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().Before(out[j].Time())
	})
	return out
}

// RecentWindow returns the bars dated on or after ref minus days, ascending.
// The input is not modified. No qualifying bars yields an empty, non-nil slice.
func RecentWindow(bars []model.Bar, days int, ref time.Time) []model.Bar {
	cutoff := ref.AddDate(0, 0, -days)

	window := make([]model.Bar, 0, len(bars))
	for _, b := range Sorted(bars) {
		t := b.Time()
		if t.IsZero() || t.Before(cutoff) {
			continue
		}
		window = append(window, b)
	}
	return window
}
