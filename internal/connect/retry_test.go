package connect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

func fastOptions() Options {
	return Options{
		Name:           "test",
		Addr:           "localhost:0",
		ConnectTimeout: 200 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
		MaxWait:        20 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	ping := func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	attempts, err := WithRetry(context.Background(), fastOptions(), ping, logger.Nop())
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryTimesOut(t *testing.T) {
	cause := errors.New("no route to host")
	ping := func(ctx context.Context) error { return cause }

	_, err := WithRetry(context.Background(), fastOptions(), ping, logger.Nop())
	if err == nil {
		t.Fatal("WithRetry() = nil, want timeout error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("error %v does not wrap the last ping failure", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"connect timeout", func(o *Options) { o.ConnectTimeout = 0 }},
		{"retry interval", func(o *Options) { o.RetryInterval = -1 }},
		{"max wait", func(o *Options) { o.MaxWait = 0 }},
		{"ping timeout", func(o *Options) { o.PingTimeout = 0 }},
		{"warn threshold", func(o *Options) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := fastOptions()
			tt.mutate(&o)
			if err := o.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tt.name)
			}
			if _, err := WithRetry(context.Background(), o, func(context.Context) error { return nil }, logger.Nop()); err == nil {
				t.Errorf("WithRetry() accepted invalid options (%s)", tt.name)
			}
		})
	}
}
