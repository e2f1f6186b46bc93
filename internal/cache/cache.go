package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kjstillabower/station-forecast-service/internal/models"
	"github.com/kjstillabower/station-forecast-service/internal/store"
)

// StationCache is the completeness cache over the record store. An entry is a
// station's full row set; it is a hit only when IsFresh holds for today.
type StationCache struct {
	store store.Store
}

// NewStationCache creates a StationCache backed by s.
func NewStationCache(s store.Store) *StationCache {
	return &StationCache{store: s}
}

// Get returns the station's stored rows and whether they form a fresh window ending at today.
// Rows are returned on a miss too, so callers can log what was there.
func (c *StationCache) Get(ctx context.Context, station string, today time.Time) ([]store.Row, bool, error) {
	rows, err := c.store.FetchByStation(ctx, station)
	if err != nil {
		return nil, false, fmt.Errorf("read station %s: %w", station, err)
	}
	return rows, IsFresh(store.Records(rows), today), nil
}

// Read returns the station's stored rows without a freshness check.
func (c *StationCache) Read(ctx context.Context, station string) ([]store.Row, error) {
	rows, err := c.store.FetchByStation(ctx, station)
	if err != nil {
		return nil, fmt.Errorf("read station %s: %w", station, err)
	}
	return rows, nil
}

// Put replaces every stored row of the station with records. Delete and inserts
// run sequentially; the first failure aborts and is returned.
func (c *StationCache) Put(ctx context.Context, station string, records []models.WeatherRecord) error {
	if err := c.store.DeleteByStation(ctx, station); err != nil {
		return fmt.Errorf("clear station %s: %w", station, err)
	}
	for _, r := range records {
		r.Station = station
		if err := c.store.Insert(ctx, r); err != nil {
			return fmt.Errorf("insert %s for %s: %w", r.Time, station, err)
		}
	}
	return nil
}
