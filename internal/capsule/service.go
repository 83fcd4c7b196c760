// Package capsule implements the capsule workflows: creation with media
// uploads, and the read side that projects capsules through the lock
// evaluator.
package capsule

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/storage"
)

var (
	capsulesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capsule_created_total",
		Help: "Capsules created.",
	})

	mediaUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_media_uploads_total",
		Help: "Media files handled by capsule creation, by result.",
	}, []string{"result"})
)

// Repository is the data access the workflows need.
type Repository interface {
	InsertCapsule(ctx context.Context, c *domain.Capsule) error
	InsertCollaborators(ctx context.Context, capsuleID uuid.UUID, emails []string) error
	InsertMedia(ctx context.Context, m *domain.MediaItem) error
	ListCapsules(ctx context.Context, ownerID uuid.UUID) ([]domain.Capsule, error)
	ListSharedWith(ctx context.Context, email string, excludeOwner uuid.UUID) ([]domain.Capsule, error)
	GetCapsule(ctx context.Context, id uuid.UUID) (*domain.Capsule, error)
	DeleteCapsule(ctx context.Context, ownerID, id uuid.UUID) ([]string, error)
}

// ObjectStore holds media binaries.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ListingCache caches raw listing rows.
type ListingCache interface {
	GetOwned(ctx context.Context, userID uuid.UUID) ([]domain.Capsule, bool, error)
	CacheOwned(ctx context.Context, userID uuid.UUID, capsules []domain.Capsule, ttl time.Duration) error
	GetShared(ctx context.Context, email string) ([]domain.Capsule, bool, error)
	CacheShared(ctx context.Context, email string, capsules []domain.Capsule, ttl time.Duration) error
	InvalidateListings(ctx context.Context, ownerID uuid.UUID, collaborators []string) error
}

// OrphanQueue collects storage paths that no row references anymore.
type OrphanQueue interface {
	QueueOrphans(ctx context.Context, paths ...string) error
}

// PromptCache is told when a user's capsules change.
type PromptCache interface {
	Forget(userID uuid.UUID)
}

// Options holds the workflow limits.
type Options struct {
	MaxMediaSize    int64
	MaxMediaFiles   int
	UploadFanout    int
	ListingCacheTTL time.Duration
	PresignTTL      time.Duration
	DefaultTimezone string
}

// Service implements the capsule workflows.
type Service struct {
	repo    Repository
	objects ObjectStore
	cache   ListingCache
	orphans OrphanQueue
	prompts PromptCache
	opts    Options
	log     logger.Logger
	now     func() time.Time
}

// NewService builds the service. cache, orphans and prompts may be nil.
func NewService(repo Repository, objects ObjectStore, cache ListingCache, orphans OrphanQueue, prompts PromptCache, opts Options, log logger.Logger) *Service {
	if opts.UploadFanout <= 0 {
		opts.UploadFanout = 1
	}
	return &Service{
		repo:    repo,
		objects: objects,
		cache:   cache,
		orphans: orphans,
		prompts: prompts,
		opts:    opts,
		log:     log.With(logger.String("component", "capsule")),
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create runs the creation workflow for the session owner.
//
// Validation failures return a *domain.ValidationError before any write. A
// failed capsule insert aborts with a DependencyError. Collaborator and
// per-file failures are logged and only reduce what ends up attached.
func (s *Service) Create(ctx context.Context, sess auth.Session, in CreateInput) (*CreateResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domain.NewValidationError("title", "is required")
	}
	unlockAt, err := ParseUnlockAt(in.UnlockDate, in.UnlockTime, in.Timezone, s.opts.DefaultTimezone)
	if err != nil {
		return nil, err
	}

	accepted, skipped := s.acceptUploads(in.Media)

	c := &domain.Capsule{
		OwnerID:     sess.UserID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Notes:       in.Notes,
		Tags:        CleanList(in.Tags),
		UnlockAt:    unlockAt.UTC(),
		IsShared:    in.IsShared,
	}
	if err := s.repo.InsertCapsule(ctx, c); err != nil {
		return nil, domain.Dependency("insert capsule", err)
	}
	capsulesCreatedTotal.Inc()

	log := s.log.With(logger.String("capsule_id", c.ID.String()), logger.String("user_id", sess.UserID.String()))

	c.Collaborators = []domain.Collaborator{}
	if emails := CleanList(in.SharedEmails); in.IsShared && len(emails) > 0 {
		if err := s.repo.InsertCollaborators(ctx, c.ID, emails); err != nil {
			log.Warn("collaborators not saved", logger.Int("count", len(emails)), logger.Error(err))
		} else {
			for _, e := range emails {
				c.Collaborators = append(c.Collaborators, domain.Collaborator{CapsuleID: c.ID, Email: e})
			}
		}
	}

	media, failed := s.uploadAll(ctx, log, c, accepted)
	c.Media = media
	skipped = append(skipped, failed...)

	s.invalidate(ctx, c.OwnerID, c.CollaboratorEmails())
	if s.prompts != nil {
		s.prompts.Forget(c.OwnerID)
	}

	log.Info("capsule created",
		logger.Int("media", len(media)),
		logger.Int("skipped", len(skipped)),
		logger.Int("collaborators", len(c.Collaborators)),
		logger.Time("unlock_at", c.UnlockAt))

	return &CreateResult{Capsule: *c, Skipped: skipped}, nil
}

// acceptUploads applies the file count and size ceilings. Files past the
// count limit and oversized files are skipped, not rejected.
func (s *Service) acceptUploads(files []Upload) ([]Upload, []SkippedUpload) {
	var (
		accepted []Upload
		skipped  []SkippedUpload
	)
	for _, f := range files {
		switch {
		case s.opts.MaxMediaFiles > 0 && len(accepted) >= s.opts.MaxMediaFiles:
			skipped = append(skipped, SkippedUpload{FileName: f.FileName, Reason: reasonTooMany})
		case s.opts.MaxMediaSize > 0 && f.Size > s.opts.MaxMediaSize:
			skipped = append(skipped, SkippedUpload{FileName: f.FileName, Reason: reasonTooLarge})
		default:
			accepted = append(accepted, f)
		}
	}
	for range skipped {
		mediaUploadsTotal.WithLabelValues("rejected").Inc()
	}
	return accepted, skipped
}

// uploadAll uploads files concurrently and records metadata for each
// successful upload. Results keep the selection order.
func (s *Service) uploadAll(ctx context.Context, log logger.Logger, c *domain.Capsule, files []Upload) ([]domain.MediaItem, []SkippedUpload) {
	type outcome struct {
		item   *domain.MediaItem
		reason string
	}
	results := make([]outcome, len(files))

	var g errgroup.Group
	g.SetLimit(s.opts.UploadFanout)

	start := s.now()
	for i, f := range files {
		g.Go(func() error {
			// Offset by position so same-named files never share a key.
			at := start.Add(time.Duration(i) * time.Millisecond)
			key := storage.MediaKey(c.OwnerID, c.ID, at, f.FileName)
			if err := s.uploadOne(ctx, key, f); err != nil {
				log.Warn("media upload failed", logger.String("file", f.FileName), logger.Error(err))
				mediaUploadsTotal.WithLabelValues("failed").Inc()
				results[i] = outcome{reason: reasonUpload}
				return nil
			}

			item := &domain.MediaItem{
				CapsuleID:   c.ID,
				StoragePath: key,
				FileName:    f.FileName,
				Kind:        domain.KindFromUpload(f.FileName, f.ContentType),
			}
			if err := s.repo.InsertMedia(ctx, item); err != nil {
				log.Warn("media metadata not saved", logger.String("file", f.FileName), logger.Error(err))
				mediaUploadsTotal.WithLabelValues("failed").Inc()
				s.queueOrphans(ctx, key)
				results[i] = outcome{reason: reasonRecordError}
				return nil
			}

			mediaUploadsTotal.WithLabelValues("stored").Inc()
			results[i] = outcome{item: item}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	media := make([]domain.MediaItem, 0, len(files))
	var skipped []SkippedUpload
	for i, r := range results {
		if r.item != nil {
			media = append(media, *r.item)
			continue
		}
		skipped = append(skipped, SkippedUpload{FileName: files[i].FileName, Reason: r.reason})
	}
	return media, skipped
}

func (s *Service) uploadOne(ctx context.Context, key string, f Upload) error {
	if f.Open == nil {
		return fmt.Errorf("no content for %s", f.FileName)
	}
	body, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.FileName, err)
	}
	defer body.Close()

	return s.objects.Put(ctx, key, body, f.Size, f.ContentType)
}

func (s *Service) invalidate(ctx context.Context, owner uuid.UUID, collaborators []string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateListings(ctx, owner, collaborators); err != nil {
		s.log.Warn("listing cache not invalidated", logger.String("user_id", owner.String()), logger.Error(err))
	}
}

func (s *Service) queueOrphans(ctx context.Context, paths ...string) {
	if s.orphans == nil || len(paths) == 0 {
		return
	}
	if err := s.orphans.QueueOrphans(ctx, paths...); err != nil {
		s.log.Warn("orphaned media not queued", logger.Strings("paths", paths), logger.Error(err))
	}
}
