package pipeline

import (
	"context"
	"time"

	"simforge/internal/logging"
	"simforge/internal/services"
)

// runStage executes fn up to maxAttempts times, sleeping between attempts
// with exponential backoff and jitter. Only failures the taxonomy marks
// retryable earn another attempt; fatal kinds and context cancellation
// return immediately. The last error is returned when the budget runs out.
func (o *Orchestrator) runStage(ctx context.Context, name string, maxAttempts int, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	log := logging.WithContext(ctx, o.logger)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		cls := services.Classify(err)
		if !cls.Retryable || attempt == maxAttempts {
			break
		}

		delay := o.backoffDelay(attempt)
		log.Warn("stage failed, retrying",
			logging.String(logging.FieldStage, name),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", maxAttempts),
			logging.String(logging.FieldErrorKind, string(cls.Kind)),
			logging.Duration("delay", delay),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// backoffDelay doubles the base per attempt, caps at the configured
// maximum, then applies up to 25% jitter in either direction.
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	delay := o.opts.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.opts.RetryMaxDelay {
			delay = o.opts.RetryMaxDelay
			break
		}
	}
	o.randMu.Lock()
	jitter := time.Duration(o.rand.Int63n(int64(delay)/2+1)) - delay/4
	o.randMu.Unlock()
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
