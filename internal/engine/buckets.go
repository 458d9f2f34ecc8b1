package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

const msPerDay = float64(24 * time.Hour / time.Millisecond)

// SelectScale picks the bucketing granularity and bucket count for a range.
func SelectScale(rng models.TimeRange) (models.Scale, int) {
	diffDays := float64(rng.End.Sub(rng.Start).Milliseconds()) / msPerDay
	if diffDays < 0 {
		diffDays = 0
	}
	switch {
	case diffDays <= 3:
		return models.ScaleHourly, int(math.Ceil(diffDays * 24))
	case diffDays <= 20:
		return models.ScaleDaily, int(math.Ceil(diffDays))
	case diffDays <= 84:
		return models.ScaleWeekly, int(math.Ceil(diffDays / 7))
	case diffDays <= 548:
		return models.ScaleMonthly, int(math.Ceil(diffDays / 30.4375))
	default:
		return models.ScaleQuarterly, int(math.Ceil(diffDays / 91.3125))
	}
}

// BuildDivisions splits rng into contiguous buckets of the selected scale. The last
// bucket is clamped to the range end. offset is the reporting shift used for labels.
func BuildDivisions(rng models.TimeRange, offset time.Duration) (models.Scale, []models.Division) {
	scale, count := SelectScale(rng)
	divisions := make([]models.Division, 0, count)
	for i := 0; i < count; i++ {
		start := advance(rng.Start, scale, i)
		if !start.Before(rng.End) {
			break
		}
		end := advance(rng.Start, scale, i+1)
		if end.After(rng.End) {
			end = rng.End
		}
		divisions = append(divisions, models.Division{
			Start: start,
			End:   end,
			Label: FormatDivisionLabel(start, scale, offset),
		})
	}
	// Short calendar months can leave the nominal count shy of the range end.
	if n := len(divisions); n > 0 && divisions[n-1].End.Before(rng.End) {
		divisions[n-1].End = rng.End
	}
	return scale, divisions
}

// advance moves t forward by n scale units. Months and quarters are calendar units.
func advance(t time.Time, scale models.Scale, n int) time.Time {
	t = t.UTC()
	switch scale {
	case models.ScaleHourly:
		return t.Add(time.Duration(n) * time.Hour)
	case models.ScaleDaily:
		return t.AddDate(0, 0, n)
	case models.ScaleWeekly:
		return t.AddDate(0, 0, 7*n)
	case models.ScaleMonthly:
		return t.AddDate(0, n, 0)
	case models.ScaleQuarterly:
		return t.AddDate(0, 3*n, 0)
	default:
		return t
	}
}

// FormatDivisionLabel renders the display label of a bucket starting at t, in
// reporting wall-clock time.
func FormatDivisionLabel(t time.Time, scale models.Scale, offset time.Duration) string {
	wall := t.UTC().Add(-offset)
	switch scale {
	case models.ScaleHourly:
		hour := wall.Hour()
		display := hour % 12
		if display == 0 {
			display = 12
		}
		meridiem := "AM"
		if hour >= 12 {
			meridiem = "PM"
		}
		return fmt.Sprintf("%d:00 %s", display, meridiem)
	case models.ScaleDaily:
		return wall.Format("Jan 2")
	case models.ScaleWeekly:
		return "Week of " + wall.Format("Jan 2")
	case models.ScaleMonthly:
		return wall.Format("January 2006")
	case models.ScaleQuarterly:
		return fmt.Sprintf("Q%d %d", (int(wall.Month())-1)/3+1, wall.Year())
	default:
		return ""
	}
}
