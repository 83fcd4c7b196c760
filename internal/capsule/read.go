package capsule

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// MediaView is a media item as shown to a viewer of an unlocked capsule.
type MediaView struct {
	ID       uuid.UUID        `json:"id"`
	FileName string           `json:"file_name"`
	Kind     domain.MediaKind `json:"media_kind"`
	URL      string           `json:"url,omitempty"`
}

// View is a capsule projected for one viewer at one instant. While the
// capsule is locked, description, notes and media are withheld.
type View struct {
	ID        uuid.UUID        `json:"id"`
	OwnerID   uuid.UUID        `json:"user_id"`
	Title     string           `json:"title"`
	Tags      []string         `json:"tags"`
	UnlockAt  time.Time        `json:"unlock_at"`
	IsShared  bool             `json:"is_shared"`
	IsOwner   bool             `json:"is_owner"`
	State     domain.LockState `json:"state"`
	CreatedAt time.Time        `json:"created_at"`

	// Locked only.
	Countdown     *domain.Countdown `json:"countdown,omitempty"`
	SealedMessage string            `json:"sealed_message,omitempty"`

	// Unlocked only.
	Description string                           `json:"description,omitempty"`
	Notes       string                           `json:"notes,omitempty"`
	Media       map[domain.MediaKind][]MediaView `json:"media,omitempty"`

	MediaCount    int      `json:"media_count"`
	Collaborators []string `json:"collaborators,omitempty"` // owner only
}

// Listing holds the capsules a user can see.
type Listing struct {
	Owned  []View `json:"owned"`
	Shared []View `json:"shared"`
}

// Stats are the dashboard counters.
type Stats struct {
	Total    int `json:"total"`
	Locked   int `json:"locked"`
	Unlocked int `json:"unlocked"`
	Shared   int `json:"shared_with_me"`
}

// List returns the caller's own capsules, newest first, and the capsules
// shared with the caller's email.
func (s *Service) List(ctx context.Context, sess auth.Session) (*Listing, error) {
	owned, shared, err := s.rows(ctx, sess)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &Listing{
		Owned:  make([]View, 0, len(owned)),
		Shared: make([]View, 0, len(shared)),
	}
	for i := range owned {
		out.Owned = append(out.Owned, s.project(ctx, &owned[i], sess, now))
	}
	for i := range shared {
		out.Shared = append(out.Shared, s.project(ctx, &shared[i], sess, now))
	}
	return out, nil
}

// Get returns one capsule visible to the caller: the owner, or a
// collaborator of a shared capsule. Anything else is domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, sess auth.Session, id uuid.UUID) (*View, error) {
	c, err := s.repo.GetCapsule(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Dependency("get capsule", err)
	}
	if !canView(c, sess) {
		return nil, domain.ErrNotFound
	}

	v := s.project(ctx, c, sess, s.now())
	return &v, nil
}

// Delete removes a capsule owned by the caller and queues its media for
// storage collection. Collaborators get domain.ErrForbidden; strangers get
// domain.ErrNotFound.
func (s *Service) Delete(ctx context.Context, sess auth.Session, id uuid.UUID) error {
	c, err := s.repo.GetCapsule(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.Dependency("get capsule", err)
	}
	if c.OwnerID != sess.UserID {
		if canView(c, sess) {
			return domain.ErrForbidden
		}
		return domain.ErrNotFound
	}

	paths, err := s.repo.DeleteCapsule(ctx, sess.UserID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrForbidden) {
			return err
		}
		return domain.Dependency("delete capsule", err)
	}

	s.queueOrphans(ctx, paths...)
	s.invalidate(ctx, c.OwnerID, c.CollaboratorEmails())
	if s.prompts != nil {
		s.prompts.Forget(c.OwnerID)
	}

	s.log.Info("capsule deleted",
		logger.String("capsule_id", id.String()),
		logger.String("user_id", sess.UserID.String()),
		logger.Int("media", len(paths)))
	return nil
}

// Stats counts the caller's capsules by lock state.
func (s *Service) Stats(ctx context.Context, sess auth.Session) (*Stats, error) {
	owned, shared, err := s.rows(ctx, sess)
	if err != nil {
		return nil, err
	}

	now := s.now()
	st := &Stats{Total: len(owned), Shared: len(shared)}
	for i := range owned {
		if domain.IsLocked(owned[i].UnlockAt, now) {
			st.Locked++
		} else {
			st.Unlocked++
		}
	}
	return st, nil
}

// rows returns raw listing rows, from the cache when possible.
func (s *Service) rows(ctx context.Context, sess auth.Session) (owned, shared []domain.Capsule, err error) {
	owned, err = s.ownedRows(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	shared, err = s.sharedRows(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	return owned, shared, nil
}

func (s *Service) ownedRows(ctx context.Context, userID uuid.UUID) ([]domain.Capsule, error) {
	if s.cache != nil {
		rows, ok, err := s.cache.GetOwned(ctx, userID)
		if err != nil {
			s.log.Warn("listing cache read failed", logger.Error(err))
		} else if ok {
			return rows, nil
		}
	}

	rows, err := s.repo.ListCapsules(ctx, userID)
	if err != nil {
		return nil, domain.Dependency("list capsules", err)
	}
	if s.cache != nil {
		if err := s.cache.CacheOwned(ctx, userID, rows, s.opts.ListingCacheTTL); err != nil {
			s.log.Warn("listing cache write failed", logger.Error(err))
		}
	}
	return rows, nil
}

func (s *Service) sharedRows(ctx context.Context, sess auth.Session) ([]domain.Capsule, error) {
	if strings.TrimSpace(sess.Email) == "" {
		return nil, nil
	}
	if s.cache != nil {
		rows, ok, err := s.cache.GetShared(ctx, sess.Email)
		if err != nil {
			s.log.Warn("listing cache read failed", logger.Error(err))
		} else if ok {
			return rows, nil
		}
	}

	rows, err := s.repo.ListSharedWith(ctx, sess.Email, sess.UserID)
	if err != nil {
		return nil, domain.Dependency("list shared capsules", err)
	}
	if s.cache != nil {
		if err := s.cache.CacheShared(ctx, sess.Email, rows, s.opts.ListingCacheTTL); err != nil {
			s.log.Warn("listing cache write failed", logger.Error(err))
		}
	}
	return rows, nil
}

func canView(c *domain.Capsule, sess auth.Session) bool {
	if c.OwnerID == sess.UserID {
		return true
	}
	return c.IsShared && c.HasCollaborator(sess.Email)
}

// project builds the view of c for sess at now. Lock state comes from
// domain.IsLocked only.
func (s *Service) project(ctx context.Context, c *domain.Capsule, sess auth.Session, now time.Time) View {
	v := View{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		Title:      c.Title,
		Tags:       c.Tags,
		UnlockAt:   c.UnlockAt,
		IsShared:   c.IsShared,
		IsOwner:    c.OwnerID == sess.UserID,
		State:      domain.StateAt(c.UnlockAt, now),
		CreatedAt:  c.CreatedAt,
		MediaCount: len(c.Media),
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if v.IsOwner {
		v.Collaborators = c.CollaboratorEmails()
	}

	if domain.IsLocked(c.UnlockAt, now) {
		cd := domain.NewCountdown(c.UnlockAt, now)
		v.Countdown = &cd
		v.SealedMessage = domain.SealedMessage(c.UnlockAt, now)
		return v
	}

	v.Description = c.Description
	v.Notes = c.Notes
	if len(c.Media) > 0 {
		v.Media = make(map[domain.MediaKind][]MediaView, 3)
		for _, m := range c.Media {
			mv := MediaView{ID: m.ID, FileName: m.FileName, Kind: m.Kind}
			url, err := s.objects.PresignGet(ctx, m.StoragePath, s.opts.PresignTTL)
			if err != nil {
				s.log.Warn("presign failed", logger.String("path", m.StoragePath), logger.Error(err))
			} else {
				mv.URL = url
			}
			v.Media[m.Kind] = append(v.Media[m.Kind], mv)
		}
	}
	return v
}
