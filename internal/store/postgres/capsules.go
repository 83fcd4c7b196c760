package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
)

const capsuleColumns = `c.id, c.user_id, c.title, c.description, c.notes, c.tags, c.unlock_at,
	c.is_shared, c.notified, c.notified_at, c.created_at, c.updated_at`

func scanCapsule(row pgx.Row) (domain.Capsule, error) {
	var c domain.Capsule
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Description, &c.Notes, &c.Tags, &c.UnlockAt,
		&c.IsShared, &c.Notified, &c.NotifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c, err
}

func collectCapsules(rows pgx.Rows) ([]domain.Capsule, error) {
	defer rows.Close()

	var out []domain.Capsule
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capsule: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capsules: %w", err)
	}
	return out, nil
}

// InsertCapsule writes a new capsule row. ID is generated when zero;
// notified always starts false. Timestamps are filled from the database.
func (s *Store) InsertCapsule(ctx context.Context, c *domain.Capsule) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	const query = `
		INSERT INTO capsules (id, user_id, title, description, notes, tags, unlock_at, is_shared)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING notified, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		c.ID, c.OwnerID, c.Title, c.Description, c.Notes, c.Tags, c.UnlockAt, c.IsShared,
	).Scan(&c.Notified, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("insert capsule: owner %s has no profile: %w", c.OwnerID, err)
		}
		return fmt.Errorf("insert capsule: %w", err)
	}
	return nil
}

// InsertCollaborators stores one row per address, keeping the given order.
// Addresses are stored as given; callers trim and drop empties.
func (s *Store) InsertCollaborators(ctx context.Context, capsuleID uuid.UUID, emails []string) error {
	if len(emails) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(emails))
	for i := range ids {
		ids[i] = uuid.New()
	}

	const query = `
		INSERT INTO capsule_collaborators (id, capsule_id, email, position)
		SELECT u.id, $1, u.email, u.ord - 1
		FROM unnest($2::uuid[], $3::text[]) WITH ORDINALITY AS u(id, email, ord)`

	if _, err := s.pool.Exec(ctx, query, capsuleID, ids, emails); err != nil {
		return fmt.Errorf("insert collaborators: %w", err)
	}
	return nil
}

// InsertMedia stores the metadata of an uploaded object.
func (s *Store) InsertMedia(ctx context.Context, m *domain.MediaItem) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	const query = `
		INSERT INTO capsule_media (id, capsule_id, storage_path, file_name, media_kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		m.ID, m.CapsuleID, m.StoragePath, m.FileName, string(m.Kind),
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// ListCapsules returns the owner's capsules, newest first, with media and
// collaborators loaded.
func (s *Store) ListCapsules(ctx context.Context, ownerID uuid.UUID) ([]domain.Capsule, error) {
	query := `SELECT ` + capsuleColumns + `
		FROM capsules c
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list capsules: %w", err)
	}
	capsules, err := collectCapsules(rows)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, s.pool, capsules); err != nil {
		return nil, err
	}
	return capsules, nil
}

// ListSharedWith returns shared capsules listing email as a collaborator,
// excluding the caller's own capsules.
func (s *Store) ListSharedWith(ctx context.Context, email string, excludeOwner uuid.UUID) ([]domain.Capsule, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}

	query := `SELECT ` + capsuleColumns + `
		FROM capsules c
		WHERE c.is_shared
		  AND c.user_id <> $2
		  AND EXISTS (
			SELECT 1 FROM capsule_collaborators cc
			WHERE cc.capsule_id = c.id AND lower(cc.email) = lower($1)
		  )
		ORDER BY c.created_at DESC`

	rows, err := s.pool.Query(ctx, query, email, excludeOwner)
	if err != nil {
		return nil, fmt.Errorf("list shared capsules: %w", err)
	}
	capsules, err := collectCapsules(rows)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, s.pool, capsules); err != nil {
		return nil, err
	}
	return capsules, nil
}

// GetCapsule returns one capsule with media and collaborators, or
// domain.ErrNotFound.
func (s *Store) GetCapsule(ctx context.Context, id uuid.UUID) (*domain.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules c WHERE c.id = $1`

	c, err := scanCapsule(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get capsule: %w", err)
	}

	one := []domain.Capsule{c}
	if err := loadChildren(ctx, s.pool, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// DeleteCapsule removes an owned capsule and returns the storage paths of
// its media so the objects can be collected. Owned rows cascade.
func (s *Store) DeleteCapsule(ctx context.Context, ownerID, id uuid.UUID) ([]string, error) {
	var paths []string
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		var owner uuid.UUID
		err := tx.QueryRow(ctx, `SELECT user_id FROM capsules WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock capsule: %w", err)
		}
		if owner != ownerID {
			return domain.ErrForbidden
		}

		rows, err := tx.Query(ctx, `SELECT storage_path FROM capsule_media WHERE capsule_id = $1`, id)
		if err != nil {
			return fmt.Errorf("list media paths: %w", err)
		}
		paths, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan media paths: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM capsules WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete capsule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// RecentCapsuleContext returns the owner's most recent capsules with only
// title, tags and notes populated.
func (s *Store) RecentCapsuleContext(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.Capsule, error) {
	const query = `
		SELECT title, tags, notes
		FROM capsules
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent capsules: %w", err)
	}
	defer rows.Close()

	var out []domain.Capsule
	for rows.Next() {
		var c domain.Capsule
		if err := rows.Scan(&c.Title, &c.Tags, &c.Notes); err != nil {
			return nil, fmt.Errorf("scan recent capsule: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// loadChildren fills Media and Collaborators for every capsule in place
// with one query per table.
func loadChildren(ctx context.Context, db DBTX, capsules []domain.Capsule) error {
	if len(capsules) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(capsules))
	byID := make(map[uuid.UUID]int, len(capsules))
	for i := range capsules {
		ids[i] = capsules[i].ID
		byID[capsules[i].ID] = i
		capsules[i].Media = []domain.MediaItem{}
		capsules[i].Collaborators = []domain.Collaborator{}
	}

	collabs, err := queryCollaborators(ctx, db, ids)
	if err != nil {
		return err
	}
	for _, cc := range collabs {
		i := byID[cc.CapsuleID]
		capsules[i].Collaborators = append(capsules[i].Collaborators, cc)
	}

	rows, err := db.Query(ctx, `
		SELECT id, capsule_id, storage_path, file_name, media_kind, created_at
		FROM capsule_media
		WHERE capsule_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m    domain.MediaItem
			kind *string
		)
		if err := rows.Scan(&m.ID, &m.CapsuleID, &m.StoragePath, &m.FileName, &kind, &m.CreatedAt); err != nil {
			return fmt.Errorf("scan media: %w", err)
		}
		if kind != nil {
			m.Kind = domain.ParseMediaKind(*kind)
		} else {
			m.Kind = domain.MediaImage
		}
		i := byID[m.CapsuleID]
		capsules[i].Media = append(capsules[i].Media, m)
	}
	return rows.Err()
}

func queryCollaborators(ctx context.Context, db DBTX, capsuleIDs []uuid.UUID) ([]domain.Collaborator, error) {
	rows, err := db.Query(ctx, `
		SELECT id, capsule_id, email, can_edit, created_at
		FROM capsule_collaborators
		WHERE capsule_id = ANY($1)
		ORDER BY capsule_id, position`, capsuleIDs)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	var out []domain.Collaborator
	for rows.Next() {
		var cc domain.Collaborator
		if err := rows.Scan(&cc.ID, &cc.CapsuleID, &cc.Email, &cc.CanEdit, &cc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}
