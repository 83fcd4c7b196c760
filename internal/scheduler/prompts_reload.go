package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	promptsource "github.com/MrSnakeDoc/timecapsule/internal/sources/prompts"
)

// FallbackSetter receives a freshly loaded fallback prompt list.
type FallbackSetter interface {
	SetFallback(prompts []string) error
}

// PromptsReloader handles periodic reloading of the fallback prompts file
type PromptsReloader struct {
	loader   *promptsource.Loader
	target   FallbackSetter
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewPromptsReloader creates a new fallback prompts reloader
func NewPromptsReloader(
	file string,
	target FallbackSetter,
	log logger.Logger,
	interval time.Duration,
) *PromptsReloader {
	return &PromptsReloader{
		loader:   promptsource.NewLoader(file),
		target:   target,
		logger:   log.With(logger.String("component", "prompts_reload")),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start loads the file once and then reloads it periodically. A broken
// file at startup is an error; later failures keep the last good list.
func (pr *PromptsReloader) Start(ctx context.Context) error {
	if err := pr.Reload(); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}
	if pr.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pr.Reload(); err != nil {
					pr.logger.Warn("failed to reload fallback prompts, keeping previous list",
						logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PromptsReloader) Stop() {
	close(pr.stopCh)
}

// Reload reads the file and hands the prompts to the target.
func (pr *PromptsReloader) Reload() error {
	prompts, err := pr.loader.Load()
	if err != nil {
		return err
	}
	if err := pr.target.SetFallback(prompts); err != nil {
		return err
	}
	pr.logger.Debug("fallback prompts loaded", logger.Int("count", len(prompts)))
	return nil
}
