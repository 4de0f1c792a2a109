package netstack

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// Backoff bounds Connect retries. Zero values fall back to defaults;
// Attempts <= 0 means a single try.
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Jitter   time.Duration
	Attempts int
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	return b
}

// Connect calls c.Connect until it succeeds, the attempts run out or ctx
// ends. Only connect-kind failures are retried.
func Connect(ctx context.Context, c transport.Client, b Backoff, log *zap.Logger) (transport.Transport, error) {
	b = b.withDefaults()
	if log == nil {
		log = zap.L()
	}
	delay := b.Initial
	var lastErr error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		t, err := c.Connect(ctx)
		if err == nil {
			return t, nil
		}
		lastErr = err
		if !errs.Is(err, errs.KindConnect) || attempt == b.Attempts {
			break
		}
		wait := withJitter(delay, b.Jitter)
		log.Warn("connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errs.E(errs.KindConnect, "netstack.connect", ctx.Err())
		case <-timer.C:
		}
		if delay < b.Max {
			delay *= 2
			if delay > b.Max {
				delay = b.Max
			}
		}
	}
	return nil, lastErr
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	// add random 0..jitter
	return d + time.Duration(rand.Int63n(int64(jitter)))
}
