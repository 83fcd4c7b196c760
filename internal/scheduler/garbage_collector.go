package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

const (
	// DefaultGCBatchSize is how many orphaned objects are popped per batch.
	DefaultGCBatchSize = 100

	// maxGCBatches bounds one collection run.
	maxGCBatches = 50
)

var gcObjectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "capsule_storage_gc_objects_total",
	Help: "Orphaned media objects handled by storage garbage collection, by result.",
}, []string{"result"})

// OrphanQueue holds storage paths no database row references anymore.
type OrphanQueue interface {
	PopOrphans(ctx context.Context, n int) ([]string, error)
	QueueOrphans(ctx context.Context, paths ...string) error
}

// ObjectDeleter removes objects and returns the keys it could not delete.
type ObjectDeleter interface {
	Delete(ctx context.Context, keys []string) ([]string, error)
}

// GarbageCollector deletes media objects left behind by deleted capsules
// and by uploads whose metadata was never recorded.
type GarbageCollector struct {
	queue     OrphanQueue
	objects   ObjectDeleter
	logger    logger.Logger
	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(
	queue OrphanQueue,
	objects ObjectDeleter,
	log logger.Logger,
	interval time.Duration,
	batchSize int,
) *GarbageCollector {
	if batchSize <= 0 {
		batchSize = DefaultGCBatchSize
	}

	return &GarbageCollector{
		queue:     queue,
		objects:   objects,
		logger:    log.With(logger.String("component", "storage_gc")),
		interval:  interval,
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if gc.interval <= 0 {
		return fmt.Errorf("gc interval must be > 0, got %v", gc.interval)
	}

	// Run immediately on start
	if _, err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := gc.Collect(ctx); err != nil {
					gc.logger.Error("garbage collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	close(gc.stopCh)
}

// Collect drains the orphan queue in batches and deletes the objects.
// Keys that could not be deleted go back on the queue. It returns how many
// objects were deleted.
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	deleted := 0
	for range maxGCBatches {
		paths, err := gc.queue.PopOrphans(ctx, gc.batchSize)
		if err != nil {
			return deleted, fmt.Errorf("pop orphans: %w", err)
		}
		if len(paths) == 0 {
			break
		}

		failed, err := gc.objects.Delete(ctx, paths)
		if err != nil {
			gc.requeue(ctx, paths)
			return deleted, fmt.Errorf("delete objects: %w", err)
		}
		if len(failed) > 0 {
			gc.logger.Warn("some objects were not deleted",
				logger.Int("failed", len(failed)))
			gc.requeue(ctx, failed)
		}

		n := len(paths) - len(failed)
		deleted += n
		gcObjectsTotal.WithLabelValues("deleted").Add(float64(n))

		if len(paths) < gc.batchSize || len(failed) > 0 {
			break
		}
	}

	if deleted > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("objects_deleted", deleted))
	} else {
		gc.logger.Debug("no objects to garbage collect")
	}
	return deleted, nil
}

func (gc *GarbageCollector) requeue(ctx context.Context, paths []string) {
	gcObjectsTotal.WithLabelValues("requeued").Add(float64(len(paths)))
	if err := gc.queue.QueueOrphans(context.WithoutCancel(ctx), paths...); err != nil {
		gc.logger.Error("orphaned objects lost",
			logger.Strings("paths", paths),
			logger.Error(err))
	}
}
