package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
)

// Cached listings hold raw capsule rows. Lock state is derived by the
// reader on every request and is never part of the cached value.

// CacheOwned stores the owner listing
func (s *Store) CacheOwned(ctx context.Context, userID uuid.UUID, capsules []domain.Capsule, ttl time.Duration) error {
	return s.setJSON(ctx, OwnedKey(userID), capsules, ttl)
}

// GetOwned returns the cached owner listing. ok is false on a cache miss.
func (s *Store) GetOwned(ctx context.Context, userID uuid.UUID) ([]domain.Capsule, bool, error) {
	return s.getCapsules(ctx, OwnedKey(userID))
}

// CacheShared stores the listing of capsules shared with email
func (s *Store) CacheShared(ctx context.Context, email string, capsules []domain.Capsule, ttl time.Duration) error {
	return s.setJSON(ctx, SharedKey(email), capsules, ttl)
}

// GetShared returns the cached shared-with listing. ok is false on a cache miss.
func (s *Store) GetShared(ctx context.Context, email string) ([]domain.Capsule, bool, error) {
	return s.getCapsules(ctx, SharedKey(email))
}

// InvalidateListings drops the owner listing and the shared listings of
// every given collaborator address in one round trip.
func (s *Store) InvalidateListings(ctx context.Context, ownerID uuid.UUID, collaborators []string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, OwnedKey(ownerID))
	for _, email := range collaborators {
		if email == "" {
			continue
		}
		pipe.Del(ctx, SharedKey(email))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate listings: %w", err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

func (s *Store) getCapsules(ctx context.Context, key string) ([]domain.Capsule, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var capsules []domain.Capsule
	if err := json.Unmarshal(data, &capsules); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return capsules, true, nil
}
