package store

import (
	"context"
	"errors"
	"sort"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

// ErrConflict is returned when a concurrent writer kept winning an optimistic update.
var ErrConflict = errors.New("store: concurrent update conflict")

// Store is the record persistence boundary consumed by the cache and forecast layers.
// Rows are returned ordered by day, observed rows before predicted rows on the same day.
type Store interface {
	FetchAll(ctx context.Context) ([]Row, error)
	FetchByStation(ctx context.Context, station string) ([]Row, error)
	Insert(ctx context.Context, rec models.WeatherRecord) error
	DeleteByStation(ctx context.Context, station string) error
	Ping(ctx context.Context) error
	Close() error
}

// Row is a stored record together with its storage-internal identifier.
type Row struct {
	ID string `json:"id"`
	models.WeatherRecord
}

// Records strips storage identifiers from rows.
func Records(rows []Row) []models.WeatherRecord {
	out := make([]models.WeatherRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.WeatherRecord)
	}
	return out
}

// sortRows orders rows by station, day, then observed before predicted.
// Insertion order is kept for ties.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Station != b.Station {
			return a.Station < b.Station
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return !a.Predicted && b.Predicted
	})
}
