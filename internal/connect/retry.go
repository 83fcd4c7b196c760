// Package connect retries the initial ping of a backing service with capped
// exponential backoff, logging progress the same way for every dependency.
package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// Options defines connection retry behavior.
type Options struct {
	Name           string        // dependency name used in logs, ex: "redis"
	Addr           string        // address shown in logs (never a full DSN)
	ConnectTimeout time.Duration // total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // warn after this many attempts, then escalate to error
}

// PingFunc checks the dependency once.
type PingFunc func(ctx context.Context) error

// Validate ensures all timing values are usable.
func (o Options) Validate() error {
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("%s: ConnectTimeout must be > 0, got %v", o.Name, o.ConnectTimeout)
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("%s: RetryInterval must be > 0, got %v", o.Name, o.RetryInterval)
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("%s: MaxWait must be > 0, got %v", o.Name, o.MaxWait)
	}
	if o.PingTimeout <= 0 {
		return fmt.Errorf("%s: PingTimeout must be > 0, got %v", o.Name, o.PingTimeout)
	}
	if o.WarnThreshold < 0 {
		return fmt.Errorf("%s: WarnThreshold must be >= 0, got %d", o.Name, o.WarnThreshold)
	}
	return nil
}

// WithRetry pings until success or until ConnectTimeout elapses. It returns
// the number of attempts made.
func WithRetry(ctx context.Context, opts Options, ping PingFunc, log logger.Logger) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	log = log.With(logger.String("dependency", opts.Name), logger.String("addr", opts.Addr))
	log.Info("connecting", logger.Duration("timeout", opts.ConnectTimeout))

	start := time.Now()
	attempt := 0
	wait := opts.RetryInterval

	for {
		attempt++

		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := ping(pingCtx)
		pingCancel()

		if err == nil {
			if attempt > 1 {
				log.Warn("connected after retry",
					logger.Int("attempts", attempt),
					logger.Duration("elapsed", time.Since(start)))
			} else {
				log.Info("connected")
			}
			return attempt, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Error("unavailable - failed to connect after timeout",
				logger.Int("attempts", attempt),
				logger.Duration("timeout", opts.ConnectTimeout),
				logger.Error(err))
			return attempt, fmt.Errorf("%s unavailable at %s after %d attempts (timeout: %v): %w",
				opts.Name, opts.Addr, attempt, opts.ConnectTimeout, err)

		case <-timer.C:
			logRetry(log, attempt, timeLeft(ctx), wait, opts.WarnThreshold, err)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}

func logRetry(log logger.Logger, attempt int, remaining, nextRetry time.Duration, warnThreshold int, err error) {
	switch {
	case remaining < 10*time.Second:
		log.Error("still down - retrying but timeout approaching",
			logger.Int("attempt", attempt),
			logger.Duration("remaining", remaining),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	case attempt <= warnThreshold:
		log.Warn("connection failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	default:
		log.Error("still unavailable - connection attempts failing",
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	}
}

// timeLeft returns the remaining time before context deadline.
func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
