package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrSnakeDoc/timecapsule/internal/config"
	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/notify"
)

// SweepLeaseName is the Redis lease shared by every replica running the sweep.
const SweepLeaseName = "unlock-sweep"

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_sweep_runs_total",
		Help: "Unlock sweep runs, by result (ok, error, skipped).",
	}, []string{"result"})

	sweepNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capsule_sweep_notifications_total",
		Help: "Unlock notifications handed to the transport, by result.",
	}, []string{"result"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capsule_sweep_duration_seconds",
		Help:    "Duration of unlock sweep runs.",
		Buckets: prometheus.DefBuckets,
	})
)

// SweepStore is the data access the sweep needs.
type SweepStore interface {
	ClaimUnlocked(ctx context.Context, now time.Time, limit int) ([]domain.Capsule, error)
	ProcessUnlocked(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, c domain.Capsule) error) (int, error)
	ResolveUserEmail(ctx context.Context, userID uuid.UUID) (string, bool, error)
}

// Lease keeps replicas from sweeping at the same time. It is an
// optimisation: the conditional update in SweepStore is what prevents
// double notification.
type Lease interface {
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

// SweepOptions configures the sweeper.
type SweepOptions struct {
	Interval   time.Duration
	BatchSize  int
	Mode       string // config.DeliveryAttempted | config.DeliveryConfirmed
	LeaseTTL   time.Duration
	RunOnStart bool

	// DispatchTimeout bounds each send. In attempted mode claimed
	// capsules are sent even after ctx is cancelled.
	DispatchTimeout time.Duration
}

// SweepReport summarises one run.
type SweepReport struct {
	Selected   int  `json:"selected"`
	Dispatched int  `json:"dispatched"`
	Failed     int  `json:"failed"`
	Marked     int  `json:"marked"`
	Skipped    bool `json:"skipped,omitempty"` // another replica held the lease
}

// UnlockSweeper notifies recipients of capsules whose unlock instant has
// passed, once per capsule.
type UnlockSweeper struct {
	store         SweepStore
	dispatcher    notify.Dispatcher
	lease         Lease
	logger        logger.Logger
	opts          SweepOptions
	holder        string
	now           func() time.Time
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewUnlockSweeper creates a sweeper. lease may be nil.
func NewUnlockSweeper(
	store SweepStore,
	dispatcher notify.Dispatcher,
	lease Lease,
	log logger.Logger,
	opts SweepOptions,
) *UnlockSweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Mode == "" {
		opts.Mode = config.DeliveryAttempted
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	return &UnlockSweeper{
		store:         store,
		dispatcher:    dispatcher,
		lease:         lease,
		logger:        log.With(logger.String("component", "unlock_sweep")),
		opts:          opts,
		holder:        uuid.NewString(),
		now:           time.Now,
		stopCh:        make(chan struct{}),
		manualTrigger: make(chan struct{}, 1),
	}
}

// Start begins the periodic sweep.
func (s *UnlockSweeper) Start(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return fmt.Errorf("sweep interval must be > 0, got %v", s.opts.Interval)
	}

	if s.opts.RunOnStart {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Warn("initial unlock sweep failed", logger.Error(err))
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx)
			case <-s.manualTrigger:
				s.logger.Info("manual unlock sweep triggered")
				s.run(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper.
func (s *UnlockSweeper) Stop() {
	close(s.stopCh)
}

// Trigger queues a run. It reports false when a run is already queued.
func (s *UnlockSweeper) Trigger() bool {
	select {
	case s.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *UnlockSweeper) run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("unlock sweep failed", logger.Error(err))
	}
}

// Sweep runs once. Capsules are selected where unlock_at <= now and
// notified = false; selection and marking are one conditional write, so
// overlapping runs never notify the same capsule twice.
func (s *UnlockSweeper) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	if s.lease != nil {
		ok, err := s.lease.AcquireLease(ctx, SweepLeaseName, s.holder, s.opts.LeaseTTL)
		switch {
		case err != nil:
			s.logger.Warn("sweep lease unavailable, running without it", logger.Error(err))
		case !ok:
			s.logger.Debug("sweep lease held by another replica")
			sweepRunsTotal.WithLabelValues("skipped").Inc()
			return SweepReport{Skipped: true}, nil
		default:
			defer func() {
				if err := s.lease.ReleaseLease(context.WithoutCancel(ctx), SweepLeaseName, s.holder); err != nil {
					s.logger.Warn("sweep lease not released", logger.Error(err))
				}
			}()
		}
	}

	var (
		report SweepReport
		err    error
	)
	now := s.now()
	if s.opts.Mode == config.DeliveryConfirmed {
		err = s.sweepConfirmed(ctx, now, &report)
	} else {
		err = s.sweepAttempted(ctx, now, &report)
	}
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return report, err
	}
	sweepRunsTotal.WithLabelValues("ok").Inc()

	if report.Selected > 0 {
		s.logger.Info("unlock sweep completed",
			logger.String("mode", s.opts.Mode),
			logger.Int("selected", report.Selected),
			logger.Int("dispatched", report.Dispatched),
			logger.Int("failed", report.Failed),
			logger.Int("marked", report.Marked),
			logger.Duration("took", time.Since(start)))
	} else {
		s.logger.Debug("no capsules to notify")
	}
	return report, nil
}

// sweepAttempted claims batches until none are left, then dispatches.
// Claimed capsules are already marked: a failed dispatch is logged only, and
// a claimed batch is sent even when ctx is cancelled mid-run. No new batch
// is claimed after cancellation.
func (s *UnlockSweeper) sweepAttempted(ctx context.Context, now time.Time, report *SweepReport) error {
	for ctx.Err() == nil {
		claimed, err := s.store.ClaimUnlocked(ctx, now, s.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("claim unlocked capsules: %w", err)
		}
		report.Selected += len(claimed)
		report.Marked += len(claimed)

		sendCtx := context.WithoutCancel(ctx)
		for i := range claimed {
			if err := s.send(sendCtx, &claimed[i]); err != nil {
				report.Failed++
				continue
			}
			report.Dispatched++
		}

		if len(claimed) < s.opts.BatchSize {
			return nil
		}
	}
	return nil
}

func (s *UnlockSweeper) send(ctx context.Context, c *domain.Capsule) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
	defer cancel()
	return s.dispatch(ctx, c)
}

// sweepConfirmed processes batches inside row-locked transactions. Failed
// capsules stay unnotified and are retried by the next run. It stops after
// a short batch or a batch that marked nothing, so a batch of failures is
// not retried in a loop.
func (s *UnlockSweeper) sweepConfirmed(ctx context.Context, now time.Time, report *SweepReport) error {
	for ctx.Err() == nil {
		selected := 0
		marked, err := s.store.ProcessUnlocked(ctx, now, s.opts.BatchSize, func(ctx context.Context, c domain.Capsule) error {
			selected++
			if err := s.send(ctx, &c); err != nil {
				report.Failed++
				return err
			}
			report.Dispatched++
			return nil
		})
		if err != nil {
			return fmt.Errorf("process unlocked capsules: %w", err)
		}
		report.Selected += selected
		report.Marked += marked

		if selected < s.opts.BatchSize || marked == 0 {
			return nil
		}
	}
	return nil
}

func (s *UnlockSweeper) dispatch(ctx context.Context, c *domain.Capsule) error {
	recipients := s.recipients(ctx, c)
	msg := notify.Message{
		CapsuleID:  c.ID,
		Recipients: recipients,
		Subject:    domain.UnlockSubject(c.Title),
		Body:       domain.UnlockBody(c, recipients),
	}

	if err := s.dispatcher.Send(ctx, msg); err != nil {
		sweepNotificationsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("unlock notification failed",
			logger.String("capsule_id", c.ID.String()),
			logger.Int("recipients", len(recipients)),
			logger.Error(err))
		return err
	}
	sweepNotificationsTotal.WithLabelValues("sent").Inc()
	return nil
}

// recipients resolves the owner address and appends the collaborators. An
// owner without a known address is left out.
func (s *UnlockSweeper) recipients(ctx context.Context, c *domain.Capsule) []string {
	email, ok, err := s.store.ResolveUserEmail(ctx, c.OwnerID)
	if err != nil {
		s.logger.Warn("owner address not resolved",
			logger.String("capsule_id", c.ID.String()),
			logger.String("user_id", c.OwnerID.String()),
			logger.Error(err))
	}
	if !ok {
		email = ""
	}
	return domain.BuildRecipients(email, c.CollaboratorEmails())
}
