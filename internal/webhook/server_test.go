package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "whsec"

const succeededBody = `{
	"type": "notification",
	"event": "payment.succeeded",
	"object": {
		"id": "pay-1",
		"status": "succeeded",
		"amount": {"value": "300.00", "currency": "RUB"},
		"metadata": {"user_id": "42", "peer_name": "alice_42"}
	}
}`

type fakeConfirmer struct {
	mu      sync.Mutex
	events  []subscription.PaymentEvent
	outcome subscription.Outcome
	err     error
}

func (f *fakeConfirmer) Confirm(ctx context.Context, ev subscription.PaymentEvent) (subscription.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.outcome, f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeNotifier) Notify(ctx context.Context, ownerID int64, kind, peerName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return nil
}

type fakePaymentNotifier struct {
	mu      sync.Mutex
	applied []bool
}

func (f *fakePaymentNotifier) PaymentApplied(ctx context.Context, ownerID int64, peerName string, created bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, created)
	return nil
}

type harness struct {
	confirmer *fakeConfirmer
	notifier  *fakeNotifier
	payments  *fakePaymentNotifier
	server    *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := &harness{
		confirmer: &fakeConfirmer{outcome: subscription.OutcomeCreated},
		notifier:  &fakeNotifier{},
		payments:  &fakePaymentNotifier{},
	}
	h.server = NewServer(h.confirmer, h.notifier, h.payments, secret, log)
	return h
}

func (h *harness) post(body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/yookassa", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.server.engine.ServeHTTP(w, req)
	return w
}

func sign(body, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSucceededPaymentConfirmed(t *testing.T) {
	h := newHarness(t)

	w := h.post(succeededBody, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.confirmer.events, 1)
	ev := h.confirmer.events[0]
	assert.Equal(t, "pay-1", ev.Ref())
	assert.Equal(t, "alice_42", ev.PeerName())
	assert.Equal(t, int64(42), ev.PayerID())
	assert.Equal(t, int64(30000), ev.Amount())
	assert.Equal(t, subscription.CurrencyRUB, ev.Currency())

	require.Len(t, h.payments.applied, 1)
	assert.True(t, h.payments.applied[0])
}

func TestSignatureCheckedWhenPresent(t *testing.T) {
	h := newHarness(t)

	w := h.post(succeededBody, map[string]string{
		"X-Payment-Sha256-Signature": sign(succeededBody, secret),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.post(succeededBody, map[string]string{
		"X-Payment-Sha256-Signature": sign(succeededBody, "wrong"),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, h.confirmer.events, 1)
}

func TestMalformedBodyRejected(t *testing.T) {
	h := newHarness(t)
	w := h.post(`{"not": "a notification"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.confirmer.events)
}

func TestDuplicatePaymentAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.confirmer.err = subscription.ErrDuplicatePayment

	w := h.post(succeededBody, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.payments.applied)
}

func TestPermanentFailureAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.confirmer.err = subscription.ErrAmountMismatch

	w := h.post(succeededBody, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTransientFailureAsksForRedelivery(t *testing.T) {
	h := newHarness(t)
	h.confirmer.err = subscription.ErrRemoteTransient

	w := h.post(succeededBody, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCanceledPaymentNotifiesPayer(t *testing.T) {
	h := newHarness(t)
	body := `{
		"type": "notification",
		"event": "payment.canceled",
		"object": {"id": "pay-2", "metadata": {"user_id": "42", "peer_name": "alice_42"}}
	}`

	w := h.post(body, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.confirmer.events)
	assert.Equal(t, []string{subscription.NotifyPaymentCanceled}, h.notifier.kinds)
}

func TestUnknownEventAcknowledged(t *testing.T) {
	h := newHarness(t)
	body := `{
		"type": "notification",
		"event": "deal.closed",
		"object": {"id": "d-1"}
	}`
	w := h.post(body, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.server.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
