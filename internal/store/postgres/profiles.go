package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
)

// UpsertProfile creates the profile or refreshes its email. Display name
// and avatar are only overwritten with non-empty values.
func (s *Store) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	const query = `
		INSERT INTO profiles (user_id, email, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email        = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE profiles.email END,
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE profiles.display_name END,
			avatar_url   = CASE WHEN EXCLUDED.avatar_url <> '' THEN EXCLUDED.avatar_url ELSE profiles.avatar_url END
		RETURNING email, display_name, avatar_url, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query, p.UserID, p.Email, p.DisplayName, p.AvatarURL).
		Scan(&p.Email, &p.DisplayName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ResolveUserEmail returns the profile email of userID. ok is false when
// the user is unknown or has no email on file.
func (s *Store) ResolveUserEmail(ctx context.Context, userID uuid.UUID) (email string, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT email FROM profiles WHERE user_id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolve user email: %w", err)
	}
	return email, email != "", nil
}
