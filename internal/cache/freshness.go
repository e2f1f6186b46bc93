package cache

import (
	"time"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

// WindowDays is the number of consecutive observed days, ending today, a fresh station must hold.
const WindowDays = 7

// IsFresh reports whether records contain an observed (non-predicted) record for
// every one of the WindowDays days ending at today. A single missing day makes the
// whole window stale; predicted records never count.
func IsFresh(records []models.WeatherRecord, today time.Time) bool {
	for d := 0; d < WindowDays; d++ {
		target := models.Day(today.AddDate(0, 0, -d))
		if !hasObserved(records, target) {
			return false
		}
	}
	return true
}

func hasObserved(records []models.WeatherRecord, day string) bool {
	for _, r := range records {
		if r.Time == day && !r.Predicted {
			return true
		}
	}
	return false
}
