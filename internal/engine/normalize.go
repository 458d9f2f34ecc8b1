package engine

import (
	"time"

	"github.com/miradorstack/mirador-utilization/internal/models"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

// DefaultReportingOffset shifts caller dates into the reporting timezone (EST, fixed, no DST).
const DefaultReportingOffset = 4 * time.Hour

// NormalizeRange converts a caller range into the instant pair every downstream step uses.
// A single-day request (start == end after shifting) covers the whole day; a multi-day
// range becomes end-exclusive by dropping its final millisecond.
func NormalizeRange(start, end time.Time, offset time.Duration) (models.TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return models.TimeRange{}, utils.NewValidationError("start and end dates are required")
	}
	if start.After(end) {
		return models.TimeRange{}, utils.NewValidationError("start date must be before end date")
	}

	shiftedStart := start.UTC().Truncate(time.Millisecond).Add(offset)
	shiftedEnd := end.UTC().Truncate(time.Millisecond).Add(offset)
	if shiftedStart.Equal(shiftedEnd) {
		shiftedEnd = shiftedStart.Add(24*time.Hour - time.Millisecond)
	} else {
		shiftedEnd = shiftedEnd.Add(-time.Millisecond)
	}
	return models.TimeRange{Start: shiftedStart, End: shiftedEnd}, nil
}
