package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/google/uuid"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

const (
	keyPrefix       = "weather:station:"
	stationIndexKey = "weather:stations"
	maxCASAttempts  = 8
)

// MemcachedStore implements Store on memcached. Each station's rows live as one JSON
// document; writes use compare-and-swap so concurrent inserts are not lost.
// A separate index document lists stations for FetchAll.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key escapes the station so names with spaces stay valid memcached keys.
func (s *MemcachedStore) key(station string) string {
	return keyPrefix + url.PathEscape(station)
}

func (s *MemcachedStore) FetchAll(ctx context.Context) ([]Row, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stations, err := s.stations()
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0)
	for _, st := range stations {
		rows, err := s.FetchByStation(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	sortRows(out)
	return out, nil
}

func (s *MemcachedStore) FetchByStation(ctx context.Context, station string) ([]Row, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	item, err := s.client.Get(s.key(station))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return []Row{}, nil
		}
		return nil, fmt.Errorf("memcached get %s: %w", station, err)
	}
	var rows []Row
	if err := json.Unmarshal(item.Value, &rows); err != nil {
		return nil, fmt.Errorf("decode rows for %s: %w", station, err)
	}
	sortRows(rows)
	return rows, nil
}

func (s *MemcachedStore) Insert(ctx context.Context, rec models.WeatherRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	row := Row{ID: uuid.New().String(), WeatherRecord: rec}
	err := s.update(s.key(rec.Station), func(raw []byte) ([]byte, error) {
		var rows []Row
		if raw != nil {
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, err
			}
		}
		return json.Marshal(append(rows, row))
	})
	if err != nil {
		return fmt.Errorf("memcached insert %s: %w", rec.Station, err)
	}
	return s.indexStation(rec.Station, true)
}

func (s *MemcachedStore) DeleteByStation(ctx context.Context, station string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.client.Delete(s.key(station)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("memcached delete %s: %w", station, err)
	}
	return s.indexStation(station, false)
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

func (s *MemcachedStore) stations() ([]string, error) {
	item, err := s.client.Get(stationIndexKey)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("memcached get station index: %w", err)
	}
	var stations []string
	if err := json.Unmarshal(item.Value, &stations); err != nil {
		return nil, fmt.Errorf("decode station index: %w", err)
	}
	return stations, nil
}

func (s *MemcachedStore) indexStation(station string, present bool) error {
	err := s.update(stationIndexKey, func(raw []byte) ([]byte, error) {
		var stations []string
		if raw != nil {
			if err := json.Unmarshal(raw, &stations); err != nil {
				return nil, err
			}
		}
		out := stations[:0]
		for _, st := range stations {
			if st != station {
				out = append(out, st)
			}
		}
		if present {
			out = append(out, station)
		}
		return json.Marshal(out)
	})
	if err != nil {
		return fmt.Errorf("memcached station index: %w", err)
	}
	return nil
}

// update applies fn to the current value of key with compare-and-swap, creating
// the key when absent. fn receives nil for a missing key.
func (s *MemcachedStore) update(key string, fn func([]byte) ([]byte, error)) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		item, err := s.client.Get(key)
		if errors.Is(err, memcache.ErrCacheMiss) {
			raw, err := fn(nil)
			if err != nil {
				return err
			}
			err = s.client.Add(&memcache.Item{Key: key, Value: raw})
			if errors.Is(err, memcache.ErrNotStored) {
				continue
			}
			return err
		}
		if err != nil {
			return err
		}
		raw, err := fn(item.Value)
		if err != nil {
			return err
		}
		item.Value = raw
		err = s.client.CompareAndSwap(item)
		if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
			continue
		}
		return err
	}
	return ErrConflict
}
