package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	calls   int
	failFor int
	seen    []string
}

func (h *fakeHandler) HandleCallback(_ context.Context, cb dto.MpesaSTKCallback) (string, error) {
	h.calls++
	h.seen = append(h.seen, cb.CheckoutRequestID)
	if h.calls <= h.failFor {
		return "", errors.New("database is unavailable")
	}
	return "completed", nil
}

func newTestCallbackWorker(h CallbackHandler) *CallbackWorker {
	w := NewCallbackWorker(h)
	w.wait = func(int) time.Duration { return 0 }
	return w
}

func payload(t *testing.T, cb dto.MpesaSTKCallback) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(cb)
	require.NoError(t, err)
	return b
}

func TestCallbackWorker_RetriesInline(t *testing.T) {
	h := &fakeHandler{failFor: 2}
	w := newTestCallbackWorker(h)

	err := w.Process(context.Background(), payload(t, dto.MpesaSTKCallback{CheckoutRequestID: "ws_CO_1"}))
	require.NoError(t, err)
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, []string{"ws_CO_1", "ws_CO_1", "ws_CO_1"}, h.seen)
}

func TestCallbackWorker_ReturnsLastErrorAfterAttempts(t *testing.T) {
	h := &fakeHandler{failFor: 10}
	w := newTestCallbackWorker(h)

	err := w.Process(context.Background(), payload(t, dto.MpesaSTKCallback{CheckoutRequestID: "ws_CO_2"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 3, h.calls)
}

func TestCallbackWorker_BadPayloadIsPermanent(t *testing.T) {
	h := &fakeHandler{}
	w := newTestCallbackWorker(h)

	err := w.Process(context.Background(), json.RawMessage(`{"CheckoutRequestID": 42`))
	assert.ErrorIs(t, err, ErrPermanent)

	err = w.Process(context.Background(), payload(t, dto.MpesaSTKCallback{ResultCode: 0}))
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Zero(t, h.calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, func(int) time.Duration { return time.Hour }, func(int) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffs(t *testing.T) {
	assert.Equal(t, time.Second, inlineBackoff(1))
	assert.Equal(t, 2*time.Second, inlineBackoff(2))

	assert.Equal(t, 2*time.Second, retryBackoff(1))
	assert.Equal(t, 8*time.Second, retryBackoff(3))
	assert.Equal(t, time.Minute, retryBackoff(10))
}
