package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// QueueOrphans records storage paths whose database rows are gone
func (s *Store) QueueOrphans(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	members := make([]any, len(paths))
	for i, p := range paths {
		members[i] = p
	}
	if err := s.client.SAdd(ctx, OrphansKey(), members...).Err(); err != nil {
		return fmt.Errorf("failed to queue orphans: %w", err)
	}
	return nil
}

// PopOrphans removes and returns up to n queued paths
func (s *Store) PopOrphans(ctx context.Context, n int) ([]string, error) {
	paths, err := s.client.SPopN(ctx, OrphansKey(), int64(n)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop orphans: %w", err)
	}
	return paths, nil
}
