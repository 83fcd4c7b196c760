package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
)

// QueryUnnotifiedPastUnlock lists capsules whose unlock instant is at or
// before now and that were never notified, oldest unlock first, with
// collaborators loaded. It takes no locks; use ClaimUnlocked or
// ProcessUnlocked to act on the result safely.
func (s *Store) QueryUnnotifiedPastUnlock(ctx context.Context, now time.Time, limit int) ([]domain.Capsule, error) {
	query := `SELECT ` + capsuleColumns + `
		FROM capsules c
		WHERE c.notified = false AND c.unlock_at <= $1
		ORDER BY c.unlock_at, c.id
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query unnotified capsules: %w", err)
	}
	capsules, err := collectCapsules(rows)
	if err != nil {
		return nil, err
	}
	if err := attachCollaborators(ctx, s.pool, capsules); err != nil {
		return nil, err
	}
	return capsules, nil
}

// MarkNotified flips notified to true only if it is still false. It reports
// whether this call performed the transition.
func (s *Store) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return markNotified(ctx, s.pool, id, at)
}

func markNotified(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE capsules
		SET notified = true, notified_at = $2
		WHERE id = $1 AND notified = false`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimUnlocked selects and marks eligible capsules in one conditional
// UPDATE. Concurrent callers never receive the same capsule: rows locked by
// another claimer are skipped, and the notified = false predicate is
// re-checked on the locked row.
//
// The claim and the collaborator read share a transaction, so a capsule is
// only marked when it is returned to the caller.
func (s *Store) ClaimUnlocked(ctx context.Context, now time.Time, limit int) ([]domain.Capsule, error) {
	var capsules []domain.Capsule
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		var err error
		capsules, err = claimUnlocked(ctx, tx, now, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return capsules, nil
}

func claimUnlocked(ctx context.Context, db DBTX, now time.Time, limit int) ([]domain.Capsule, error) {
	query := `
		UPDATE capsules c
		SET notified = true, notified_at = $1
		WHERE c.id IN (
			SELECT id FROM capsules
			WHERE notified = false AND unlock_at <= $1
			ORDER BY unlock_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND c.notified = false
		RETURNING ` + capsuleColumns

	rows, err := db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim unlocked capsules: %w", err)
	}
	capsules, err := collectCapsules(rows)
	if err != nil {
		return nil, err
	}
	if err := attachCollaborators(ctx, db, capsules); err != nil {
		return nil, err
	}
	return capsules, nil
}

// ProcessUnlocked locks eligible capsules inside one transaction and calls
// fn for each. A capsule is marked notified only when fn returns nil; a
// failed capsule stays eligible for the next run. It returns how many
// capsules were marked.
//
// Rows stay locked while fn runs, so concurrent sweeps skip them.
func (s *Store) ProcessUnlocked(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, c domain.Capsule) error) (int, error) {
	marked := 0
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + capsuleColumns + `
			FROM capsules c
			WHERE c.notified = false AND c.unlock_at <= $1
			ORDER BY c.unlock_at, c.id
			LIMIT $2
			FOR UPDATE SKIP LOCKED`

		rows, err := tx.Query(ctx, query, now, limit)
		if err != nil {
			return fmt.Errorf("lock unlocked capsules: %w", err)
		}
		capsules, err := collectCapsules(rows)
		if err != nil {
			return err
		}
		if err := attachCollaborators(ctx, tx, capsules); err != nil {
			return err
		}

		for _, c := range capsules {
			if err := fn(ctx, c); err != nil {
				continue
			}
			ok, err := markNotified(ctx, tx, c.ID, now)
			if err != nil {
				return err
			}
			if ok {
				marked++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func attachCollaborators(ctx context.Context, db DBTX, capsules []domain.Capsule) error {
	if len(capsules) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(capsules))
	byID := make(map[uuid.UUID]int, len(capsules))
	for i := range capsules {
		ids[i] = capsules[i].ID
		byID[capsules[i].ID] = i
	}

	collabs, err := queryCollaborators(ctx, db, ids)
	if err != nil {
		return err
	}
	for _, cc := range collabs {
		i := byID[cc.CapsuleID]
		capsules[i].Collaborators = append(capsules[i].Collaborators, cc)
	}
	return nil
}
