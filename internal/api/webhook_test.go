package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"stepwells-backend/internal/gateway"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/service"
	"stepwells-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "test_webhook_secret"

// webhookStore is a minimal in-memory donation store for webhook tests.
type webhookStore struct {
	mu          sync.Mutex
	donations   map[string]*models.Donation // keyed by gateway order id
	completions int
	failNext    bool // next CompleteDonation returns an error
}

func newWebhookStore() *webhookStore {
	return &webhookStore{donations: make(map[string]*models.Donation)}
}

func (s *webhookStore) addPending(gatewayOrderID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donations[gatewayOrderID] = &models.Donation{
		ID:             "don-" + gatewayOrderID,
		Amount:         amount,
		Status:         models.DonationStatusPending,
		GatewayOrderID: gatewayOrderID,
	}
}

func (s *webhookStore) statusOf(gatewayOrderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[gatewayOrderID]
	if !ok {
		return ""
	}
	return d.Status
}

func (s *webhookStore) CreateDonation(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donations[d.GatewayOrderID] = d
	return nil
}

func (s *webhookStore) CompleteDonation(_ context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Donation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, false, fmt.Errorf("connection reset")
	}
	d, ok := s.donations[gatewayOrderID]
	if !ok {
		return nil, false, store.ErrDonationNotFound
	}
	if d.Status != models.DonationStatusPending {
		return d, true, nil
	}
	now := time.Now()
	d.Status = models.DonationStatusCompleted
	d.GatewayPaymentID = gatewayPaymentID
	d.PaidAt = &now
	s.completions++
	return d, false, nil
}

func (s *webhookStore) InsertCompletedDonation(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Status = models.DonationStatusCompleted
	s.donations[d.GatewayOrderID] = d
	return nil
}

func (s *webhookStore) ListDonationsByUser(_ context.Context, userID string) ([]models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Donation
	for _, d := range s.donations {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *webhookStore) GetDonationByID(_ context.Context, id string) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.donations {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, store.ErrDonationNotFound
}

// webhookGateway verifies webhook signatures with the real HMAC scheme.
type webhookGateway struct{}

func (webhookGateway) KeyID() string { return "rzp_test_key" }

func (webhookGateway) CreateOrder(int64, string, string, map[string]interface{}) (string, error) {
	return "order_fake", nil
}

func (webhookGateway) VerifyPaymentSignature(string, string, string) bool { return false }

func (webhookGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return gateway.Sign(body, testWebhookSecret) == signature
}

// memDeduper tracks webhook event ids in memory.
type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) MarkWebhookEvent(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *memDeduper) UnmarkWebhookEvent(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

func newWebhookRouter(t *testing.T, ws *webhookStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	donations := service.NewDonationService(ws, webhookGateway{}, nil)
	handler := NewHandler(nil, donations, nil, nil, webhookGateway{}, &memDeduper{}, nil, nil)

	router := gin.New()
	handler.SetupRoutes(router)
	return router
}

func capturedPaymentBody(gatewayOrderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"%s","order_id":"%s"}}}}`,
		paymentID, gatewayOrderID))
}

func postWebhook(router *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	router := newWebhookRouter(t, ws)

	w := postWebhook(router, capturedPaymentBody("order_1", "pay_1"), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.DonationStatusPending, ws.statusOf("order_1"))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	router := newWebhookRouter(t, ws)

	body := capturedPaymentBody("order_1", "pay_1")
	w := postWebhook(router, body, map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, "wrong_secret"),
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.DonationStatusPending, ws.statusOf("order_1"))
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	router := newWebhookRouter(t, ws)

	signature := gateway.Sign(capturedPaymentBody("order_1", "pay_1"), testWebhookSecret)
	tampered := capturedPaymentBody("order_1", "pay_other")
	w := postWebhook(router, tampered, map[string]string{
		"X-Razorpay-Signature": signature,
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.DonationStatusPending, ws.statusOf("order_1"))
}

func TestWebhookSettlesPendingDonation(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	router := newWebhookRouter(t, ws)

	body := capturedPaymentBody("order_1", "pay_1")
	w := postWebhook(router, body, map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, testWebhookSecret),
		"X-Razorpay-Event-Id":  "evt_1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DonationStatusCompleted, ws.statusOf("order_1"))
	assert.Equal(t, 1, ws.completions)
}

func TestWebhookRedeliveryIsAcknowledgedOnce(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	router := newWebhookRouter(t, ws)

	body := capturedPaymentBody("order_1", "pay_1")
	headers := map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, testWebhookSecret),
		"X-Razorpay-Event-Id":  "evt_1",
	}

	assert.Equal(t, http.StatusOK, postWebhook(router, body, headers).Code)
	assert.Equal(t, http.StatusOK, postWebhook(router, body, headers).Code)
	assert.Equal(t, 1, ws.completions)
}

func TestWebhookRedeliveryAfterTransientFailureSettles(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	ws.failNext = true
	router := newWebhookRouter(t, ws)

	body := capturedPaymentBody("order_1", "pay_1")
	headers := map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, testWebhookSecret),
		"X-Razorpay-Event-Id":  "evt_1",
	}

	// The first delivery fails on a transient store error.
	assert.Equal(t, http.StatusInternalServerError, postWebhook(router, body, headers).Code)
	assert.Equal(t, models.DonationStatusPending, ws.statusOf("order_1"))

	// The gateway redelivers the same event id; it must reach the
	// reconciler instead of being swallowed by the dedupe fast path.
	assert.Equal(t, http.StatusOK, postWebhook(router, body, headers).Code)
	assert.Equal(t, models.DonationStatusCompleted, ws.statusOf("order_1"))
	assert.Equal(t, 1, ws.completions)
}

func TestWebhookIgnoresUnrecognizedEvents(t *testing.T) {
	ws := newWebhookStore()
	ws.addPending("order_1", 500)
	router := newWebhookRouter(t, ws)

	body := []byte(`{"event":"refund.processed","payload":{}}`)
	w := postWebhook(router, body, map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, testWebhookSecret),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DonationStatusPending, ws.statusOf("order_1"))
}

func TestWebhookAcksSignedUnparseableBody(t *testing.T) {
	ws := newWebhookStore()
	router := newWebhookRouter(t, ws)

	body := []byte(`not json at all`)
	w := postWebhook(router, body, map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, testWebhookSecret),
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookAcksUnknownOrder(t *testing.T) {
	ws := newWebhookStore()
	router := newWebhookRouter(t, ws)

	body := capturedPaymentBody("order_unknown", "pay_1")
	w := postWebhook(router, body, map[string]string{
		"X-Razorpay-Signature": gateway.Sign(body, testWebhookSecret),
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookRejectsWrongMethod(t *testing.T) {
	router := newWebhookRouter(t, newWebhookStore())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/razorpay", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
