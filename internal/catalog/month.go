package catalog

import (
	"fmt"
	"time"

	"github.com/starford/mdblog/internal/apperr"
)

// MonthLayout is the accepted format of the month query parameter.
const MonthLayout = "2006-01"

// MonthWindow returns the inclusive UTC window [first ms of month, last ms
// of month] for a "YYYY-MM" string. An empty month means the month
// containing now.
func MonthWindow(month string, now time.Time) (from, to time.Time, err error) {
	var start time.Time
	if month == "" {
		n := now.UTC()
		start = time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		start, err = time.ParseInLocation(MonthLayout, month, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("catalog: month %q (want YYYY-MM): %w", month, apperr.ErrInvalidInput)
		}
	}
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end, nil
}
