package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

// MemoryStore implements Store in process memory. At most maxStations station
// row sets are kept; the least recently used station is evicted whole.
type MemoryStore struct {
	mu     sync.Mutex // serializes read-modify-write on a station's rows
	rows   *lru.Cache[string, []Row]
	nextID uint64
}

// NewMemoryStore creates a MemoryStore holding up to maxStations stations.
func NewMemoryStore(maxStations int) (*MemoryStore, error) {
	if maxStations <= 0 {
		maxStations = 1024
	}
	c, err := lru.New[string, []Row](maxStations)
	if err != nil {
		return nil, fmt.Errorf("creating LRU store: %w", err)
	}
	return &MemoryStore{rows: c}, nil
}

func (s *MemoryStore) FetchAll(ctx context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0)
	for _, station := range s.rows.Keys() {
		rows, _ := s.rows.Peek(station)
		out = append(out, rows...)
	}
	sortRows(out)
	return out, nil
}

func (s *MemoryStore) FetchByStation(ctx context.Context, station string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, _ := s.rows.Get(station)
	out := make([]Row, len(rows))
	copy(out, rows)
	sortRows(out)
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rows, _ := s.rows.Get(rec.Station)
	next := make([]Row, len(rows), len(rows)+1)
	copy(next, rows)
	next = append(next, Row{ID: strconv.FormatUint(s.nextID, 10), WeatherRecord: rec})
	s.rows.Add(rec.Station, next)
	return nil
}

func (s *MemoryStore) DeleteByStation(ctx context.Context, station string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows.Remove(station)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.rows.Purge()
	return nil
}
