package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/deckcheck/internal/prompt"
)

// Backoff returns a duration for attempt n (0-indexed) with jitter, doubling
// from base and capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d + jitter
}

// Retrying wraps a provider with a per-attempt timeout and bounded retries
// on transient errors.
type Retrying struct {
	client      Client
	maxRetries  int
	timeout     time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	stats       *LLMStats
	log         *slog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// RetryConfig configures a Retrying client.
type RetryConfig struct {
	MaxRetries  int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func NewRetrying(c Client, cfg RetryConfig, stats *LLMStats, log *slog.Logger) *Retrying {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrying{
		client:      c,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		stats:       stats,
		log:         log,
		sleep:       sleepCtx,
	}
}

func (r *Retrying) Name() string { return r.client.Name() }

func (r *Retrying) Infer(ctx context.Context, p *prompt.Payload) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			wait := Backoff(attempt-1, r.backoffBase, r.backoffMax)
			r.log.Warn("retrying inference", "provider", r.client.Name(), "attempt", attempt, "backoff", wait, "error", lastErr)
			if err := r.sleep(ctx, wait); err != nil {
				return "", fmt.Errorf("inference cancelled: %w", err)
			}
		}

		start := time.Now()
		text, err := r.attempt(ctx, p)
		if err == nil {
			if r.stats != nil {
				r.stats.Record(time.Since(start))
			}
			return text, nil
		}
		lastErr = err
		if r.stats != nil {
			r.stats.RecordFailure(IsTransient(err))
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("inference failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *Retrying) attempt(ctx context.Context, p *prompt.Payload) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Infer(attemptCtx, p)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
