//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestMemcachedStore_Contract_Integration runs the store contract against a live
// memcached. Skips when the server is unreachable.
func TestMemcachedStore_Contract_Integration(t *testing.T) {
	addrs := os.Getenv("MEMCACHED_ADDRS")
	if addrs == "" {
		addrs = "localhost:11211"
	}
	s, err := NewMemcachedStore(addrs, 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedStore() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("memcached may not be running: %v", err)
	}
	for _, st := range []string{"stuttgart", "berlin", "nowhere", "never-stored"} {
		_ = s.DeleteByStation(ctx, st)
	}

	runStoreSuite(t, s)
}

// TestPostgresStore_Contract_Integration runs the store contract against POSTGRES_DSN.
func TestPostgresStore_Contract_Integration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, 4)
	if err != nil {
		t.Skipf("postgres may not be running: %v", err)
	}
	defer s.Close()
	for _, st := range []string{"stuttgart", "berlin"} {
		_ = s.DeleteByStation(ctx, st)
	}

	runStoreSuite(t, s)
}
