package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig controls device reopen attempts after a read failure.
type ReconnectConfig struct {
	// MaxRetries caps consecutive failed attempts. Zero retries forever.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultReconnectConfig retries forever with delays from 500ms up to 10s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    0,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 10 * time.Second,
	}
}

// reconnect calls open until it succeeds, ctx is cancelled, or MaxRetries
// consecutive attempts failed. onAttempt runs before every wait.
func reconnect(ctx context.Context, logger *slog.Logger, open func() error, cfg ReconnectConfig, onAttempt func()) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := open()
		if err == nil {
			if attempt > 0 {
				logger.Info("device reopened", "attempts", attempt+1)
			}
			return nil
		}

		attempt++
		onAttempt()

		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries {
			return fmt.Errorf("camera: giving up after %d reopen attempts: %w", attempt, err)
		}

		delay := backoff(attempt, cfg)
		logger.Warn("device reopen failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func backoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
