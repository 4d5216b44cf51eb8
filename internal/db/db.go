package db

import (
	"context"
	"time"
)

// Store is the key-value facade used for session records.
type Store interface {
	Pinger
	HashStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	// Scan returns all keys matching a glob pattern (Redis MATCH syntax).
	Scan(ctx context.Context, pattern string) ([]string, error)
}
