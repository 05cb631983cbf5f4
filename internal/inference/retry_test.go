package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/deckcheck/internal/prompt"
)

type scriptedClient struct {
	errs  []error // returned in order; nil means success
	calls int
	ctxs  []context.Context
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Infer(ctx context.Context, p *prompt.Payload) (string, error) {
	s.ctxs = append(s.ctxs, ctx)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return "[]", nil
}

func newTestRetrying(c Client, retries int) (*Retrying, *[]time.Duration) {
	r := NewRetrying(c, RetryConfig{MaxRetries: retries, Timeout: time.Second}, NewLLMStats(time.Hour), nil)
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return r, &waits
}

var (
	errTransient = &Error{Provider: "scripted", StatusCode: 503, Transient: true}
	errFatal     = &Error{Provider: "scripted", StatusCode: 401}
)

func TestRetrying_RecoversFromTransient(t *testing.T) {
	c := &scriptedClient{errs: []error{errTransient, errTransient}}
	r, waits := newTestRetrying(c, 3)

	text, err := r.Infer(context.Background(), &prompt.Payload{})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if text != "[]" || c.calls != 3 {
		t.Errorf("expected success on third call, got %q after %d", text, c.calls)
	}
	if len(*waits) != 2 {
		t.Errorf("expected 2 backoff waits, got %d", len(*waits))
	}
	snap := r.stats.Snapshot()
	if snap.Count != 1 || snap.Transient != 2 {
		t.Errorf("unexpected stats %+v", snap)
	}
}

func TestRetrying_FatalNotRetried(t *testing.T) {
	c := &scriptedClient{errs: []error{errFatal}}
	r, waits := newTestRetrying(c, 3)

	_, err := r.Infer(context.Background(), &prompt.Payload{})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if c.calls != 1 || len(*waits) != 0 {
		t.Errorf("fatal error was retried: calls=%d waits=%d", c.calls, len(*waits))
	}
}

func TestRetrying_ExhaustsBound(t *testing.T) {
	c := &scriptedClient{errs: []error{errTransient, errTransient, errTransient, errTransient, errTransient}}
	r, _ := newTestRetrying(c, 2)

	_, err := r.Infer(context.Background(), &prompt.Payload{})
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient error after exhaustion, got %v", err)
	}
	if c.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", c.calls)
	}
}

func TestRetrying_PerAttemptTimeout(t *testing.T) {
	c := &scriptedClient{}
	r, _ := newTestRetrying(c, 0)
	if _, err := r.Infer(context.Background(), &prompt.Payload{}); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	deadline, ok := c.ctxs[0].Deadline()
	if !ok || time.Until(deadline) > time.Second {
		t.Errorf("expected per-attempt deadline within 1s, got %v (ok=%v)", deadline, ok)
	}
}

func TestRetrying_CancelledDuringBackoff(t *testing.T) {
	c := &scriptedClient{errs: []error{errTransient, errTransient}}
	r, _ := newTestRetrying(c, 3)
	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := r.Infer(ctx, &prompt.Payload{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", c.calls)
	}
}

func TestBackoff(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt, 100*time.Millisecond, time.Second)
		base := min(100*time.Millisecond<<uint(attempt), time.Second)
		if d < base || d > base+base/2 {
			t.Errorf("attempt %d: %v outside [%v, %v]", attempt, d, base, base+base/2)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(errTransient) {
		t.Error("expected transient")
	}
	if IsTransient(errFatal) || IsTransient(errors.New("plain")) || IsTransient(nil) {
		t.Error("expected not transient")
	}
}
