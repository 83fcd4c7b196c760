package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store handles Redis operations for listing caches, job leases and the
// storage garbage collection queue.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Name identifies the store in readiness reports.
func (s *Store) Name() string { return "redis" }

// Ready pings Redis.
func (s *Store) Ready(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
