package domain

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 4
	defaultBaseBackoff = 1 * time.Second
	defaultMaxBackoff  = 10 * time.Second
)

// DeleterConfig tunes the per-candidate retry loop.
type DeleterConfig struct {
	// MaxAttempts bounds the total number of delete calls per candidate,
	// the first attempt included.
	MaxAttempts int

	// BaseBackoff is the wait after the first failed attempt. The wait
	// doubles per attempt up to MaxBackoff.
	BaseBackoff time.Duration

	// MaxBackoff caps the computed wait. A server rate-limit hint may
	// still exceed it.
	MaxBackoff time.Duration
}

func (c DeleterConfig) withDefaults() DeleterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Deleter drives one candidate at a time through a bounded attempt/wait
// cycle: an attempt either deletes the post, ends the candidate on a
// permanent failure, or schedules another attempt after a backoff wait.
type Deleter struct {
	deleter PostDeleter
	cfg     DeleterConfig
	logger  *slog.Logger

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewDeleter returns a Deleter with the config's zero values filled in.
func NewDeleter(pd PostDeleter, cfg DeleterConfig, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deleter{
		deleter: pd,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sleep:   sleepContext,
		jitter:  rand.Float64,
	}
}

// Delete runs the candidate to a terminal outcome. OutcomeDeleted means the
// record is gone. OutcomeSkipped means a permanent failure ended the
// candidate early. OutcomeFailed means every attempt failed or the context
// was cancelled; the returned error is the last failure.
func (d *Deleter) Delete(ctx context.Context, post Post) (Outcome, error) {
	var lastErr error
	backoff := d.cfg.BaseBackoff

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return OutcomeFailed, err
		}

		err := d.deleter.DeletePost(ctx, post)
		if err == nil {
			return OutcomeDeleted, nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return OutcomeSkipped, err
		}

		lastErr = err
		if attempt == d.cfg.MaxAttempts {
			break
		}

		wait := d.nextWait(err, backoff)
		d.logger.Warn("delete attempt failed, waiting",
			"uri", post.URI,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if err := d.sleep(ctx, wait); err != nil {
			return OutcomeFailed, err
		}
		backoff = min(backoff*2, d.cfg.MaxBackoff)
	}

	return OutcomeFailed, lastErr
}

// nextWait is the jittered backoff, raised to the server's rate-limit hint
// when the hint is longer.
func (d *Deleter) nextWait(err error, backoff time.Duration) time.Duration {
	wait := backoff + time.Duration((d.jitter()*2-1)*0.1*float64(backoff))

	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > wait {
		wait = rl.RetryAfter
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
