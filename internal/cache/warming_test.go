package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kjstillabower/station-forecast-service/internal/models"
)

type mockStationFetcher struct {
	mu      sync.Mutex
	warmed  []string
	failFor map[string]error
}

func (m *mockStationFetcher) WarmStation(ctx context.Context, station models.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmed = append(m.warmed, station.Name)
	return m.failFor[station.Name]
}

func TestWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockStationFetcher{}
	warmer := NewWarmer(fetcher, nil, 2)

	err := warmer.Warm(context.Background(), []models.Station{
		{Name: "stuttgart", Lat: 48.78, Lon: 9.18},
		{Name: "berlin", Lat: 52.52, Lon: 13.41},
		{Name: "hamburg", Lat: 53.55, Lon: 9.99},
	})
	if err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if len(fetcher.warmed) != 3 {
		t.Errorf("warmed %d stations, want 3", len(fetcher.warmed))
	}
}

func TestWarmer_Warm_EmptyStations(t *testing.T) {
	warmer := NewWarmer(&mockStationFetcher{}, nil, 0)

	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm() with nil stations error = %v, want nil", err)
	}
}

func TestWarmer_Warm_JoinsFailuresAndKeepsGoing(t *testing.T) {
	apiDown := errors.New("api down")
	fetcher := &mockStationFetcher{failFor: map[string]error{"berlin": apiDown}}
	warmer := NewWarmer(fetcher, nil, 1)

	err := warmer.Warm(context.Background(), []models.Station{{Name: "berlin"}, {Name: "stuttgart"}})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, apiDown) {
		t.Errorf("Warm() error = %v, want wrapping %v", err, apiDown)
	}
	if !strings.Contains(err.Error(), "warm berlin") {
		t.Errorf("Warm() error = %q, want station name", err.Error())
	}
	if len(fetcher.warmed) != 2 {
		t.Errorf("warmed %d stations, want 2 (failure must not stop others)", len(fetcher.warmed))
	}
}
