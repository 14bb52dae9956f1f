package worker

// callback_worker.go
// Re-applies gateway callbacks that failed inline (database unavailable,
// lock timeout). The handler acks the gateway regardless, so this queue is
// the only place such a result survives.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"

	"github.com/rs/zerolog/log"
)

// CallbackHandler applies one gateway result. Implemented by the mpesa service.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, cb dto.MpesaSTKCallback) (string, error)
}

// CallbackWorker processes jobs from QueueMpesaCallback.
type CallbackWorker struct {
	handler CallbackHandler
	// inline attempts per delivery before handing back to the pool
	attempts int
	wait     func(attempt int) time.Duration
}

func NewCallbackWorker(handler CallbackHandler) *CallbackWorker {
	return &CallbackWorker{handler: handler, attempts: 3, wait: inlineBackoff}
}

// Process handles a single callback job:
//  1. Decode the callback; an undecodable payload is permanent
//  2. Apply it with a short inline backoff
//  3. Return the last error so the pool re-queues or dead-letters it
func (w *CallbackWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var cb dto.MpesaSTKCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return fmt.Errorf("%w: decode callback: %v", ErrPermanent, err)
	}
	if cb.CheckoutRequestID == "" {
		return fmt.Errorf("%w: callback without checkout request id", ErrPermanent)
	}

	var outcome string
	err := withRetry(ctx, w.attempts, w.wait, func(attempt int) error {
		out, err := w.handler.HandleCallback(ctx, cb)
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("checkout_request_id", cb.CheckoutRequestID).
				Msg("callback_worker: apply failed")
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("checkout_request_id", cb.CheckoutRequestID).
		Str("outcome", outcome).
		Msg("callback_worker: deferred callback applied")
	return nil
}

// withRetry calls fn up to maxAttempts times, sleeping wait(i) before each
// retry. Returns the last error.
func withRetry(ctx context.Context, maxAttempts int, wait func(int) time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait(i)):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// inlineBackoff: attempt 1 = immediate, 2 = 1s, 3 = 2s.
func inlineBackoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * time.Second
}
