package service

import (
	"context"
	"errors"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/refgen"
	"stepwells-backend/internal/store"
	"stepwells-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confirmation signal sources, recorded on settlement.
const (
	SourceCallback = "callback"
	SourceWebhook  = "webhook"
)

// DonationStore is the persistence surface needed by DonationService.
type DonationStore interface {
	CreateDonation(ctx context.Context, d *models.Donation) error
	CompleteDonation(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Donation, bool, error)
	InsertCompletedDonation(ctx context.Context, d *models.Donation) error
	GetDonationByID(ctx context.Context, id string) (*models.Donation, error)
	ListDonationsByUser(ctx context.Context, userID string) ([]models.Donation, error)
}

// Gateway is the payment gateway surface needed here.
type Gateway interface {
	KeyID() string
	CreateOrder(amount int64, currency, receipt string, notes map[string]interface{}) (string, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// DonationEvents is the subset of the event publisher used here.
type DonationEvents interface {
	PublishDonationCreated(ctx context.Context, event *models.DonationCreatedEvent) error
	PublishDonationCompleted(ctx context.Context, event *models.DonationCompletedEvent) error
}

// DonationService creates gateway payment orders and reconciles the
// two confirmation signals (client callback and webhook) into exactly
// one pending-to-completed transition per payment.
type DonationService struct {
	store   DonationStore
	gateway Gateway
	events  DonationEvents
	logger  *zap.Logger
}

// NewDonationService creates a new donation service
func NewDonationService(store DonationStore, gateway Gateway, events DonationEvents) *DonationService {
	return &DonationService{
		store:   store,
		gateway: gateway,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// CreatePaymentOrderRequest represents a donation intent.
type CreatePaymentOrderRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	DonorName string `json:"donor_name"`
	Message   string `json:"message"`
}

// CreatePaymentOrderResponse carries what the hosted checkout needs.
type CreatePaymentOrderResponse struct {
	GatewayOrderID string `json:"order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

// CreatePaymentOrder creates a gateway order and records the matching
// pending donation that later confirmations reconcile against.
func (s *DonationService) CreatePaymentOrder(ctx context.Context, identity *auth.Identity, req *CreatePaymentOrderRequest) (*CreatePaymentOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "DonationService.CreatePaymentOrder")
	defer span.End()

	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in to donate")
	}
	if req.Amount < 1 {
		return nil, apperr.New(apperr.InvalidArgument, "amount must be at least ₹1")
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}
	donorName := req.DonorName
	if donorName == "" {
		donorName = "Anonymous"
	}

	receipt := refgen.Generate("DON")

	gatewayOrderID, err := s.createGatewayOrder(req.Amount, currency, receipt, map[string]interface{}{
		"donorName": donorName,
		"userId":    identity.UID,
	})
	if err != nil {
		s.logger.Error("Gateway order creation failed", zap.Error(err))
		return nil, apperr.Wrap(err, apperr.Internal, "failed to create payment order")
	}

	donation := &models.Donation{
		ID:             uuid.NewString(),
		UserID:         identity.UID,
		Amount:         req.Amount,
		Currency:       currency,
		Status:         models.DonationStatusPending,
		GatewayOrderID: gatewayOrderID,
		Receipt:        receipt,
		DonorName:      donorName,
		DonorEmail:     identity.Email,
		Message:        req.Message,
	}

	if err := s.store.CreateDonation(ctx, donation); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to record donation")
	}

	util.DonationsCreatedTotal.Inc()
	s.logger.Info("Pending donation created",
		zap.String("donation_id", donation.ID),
		zap.String("gateway_order_id", gatewayOrderID),
		zap.Int64("amount", req.Amount))

	if s.events != nil {
		event := &models.DonationCreatedEvent{
			BaseEvent:      models.NewBaseEvent(models.EventTypeDonationCreated),
			DonationID:     donation.ID,
			GatewayOrderID: gatewayOrderID,
			Amount:         req.Amount,
			Currency:       currency,
		}
		if err := s.events.PublishDonationCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish DonationCreated event", zap.Error(err))
		}
	}

	return &CreatePaymentOrderResponse{
		GatewayOrderID: gatewayOrderID,
		Amount:         req.Amount,
		Currency:       currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

func (s *DonationService) createGatewayOrder(amount int64, currency, receipt string, notes map[string]interface{}) (string, error) {
	timer := util.GatewayOrderLatency
	done := util.ObserveDuration(timer)
	defer done()

	return s.gateway.CreateOrder(amount, currency, receipt, notes)
}

// VerifyPaymentRequest carries the gateway identifiers and signature
// handed to the client by the hosted checkout.
type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// VerifyPaymentResponse acknowledges a settled donation.
type VerifyPaymentResponse struct {
	Success    bool   `json:"success"`
	DonationID string `json:"donation_id"`
}

// VerifyPayment is the client-callback confirmation path. The HMAC
// signature is verified in constant time before any lookup; on a match
// the pending donation is conditionally transitioned to completed. A
// signal arriving after the other path already settled the record is a
// success no-op.
func (s *DonationService) VerifyPayment(ctx context.Context, identity *auth.Identity, req *VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "DonationService.VerifyPayment")
	defer span.End()

	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing payment details")
	}

	if !s.gateway.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		util.SignatureFailuresTotal.WithLabelValues(SourceCallback).Inc()
		s.logger.Warn("Payment signature verification failed",
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.String("caller", identity.UID))
		return nil, apperr.New(apperr.PermissionDenied, "payment verification failed")
	}

	donation, err := s.settle(ctx, req.GatewayOrderID, req.GatewayPaymentID, SourceCallback)
	if err != nil {
		return nil, err
	}

	return &VerifyPaymentResponse{Success: true, DonationID: donation.ID}, nil
}

// WebhookEvent is the parsed gateway webhook payload.
type WebhookEvent struct {
	EventID        string
	EventType      string
	GatewayOrderID string
	PaymentID      string
}

// HandleWebhookEvent is the server-to-server confirmation path. The
// HTTP layer has already verified the body signature; recognized
// payment-captured events settle the matching donation, everything
// else is acknowledged and ignored.
func (s *DonationService) HandleWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "DonationService.HandleWebhookEvent")
	defer span.End()

	if event.EventType != "payment.captured" {
		s.logger.Debug("Ignoring webhook event", zap.String("event", event.EventType))
		return nil
	}

	_, err := s.settle(ctx, event.GatewayOrderID, event.PaymentID, SourceWebhook)
	if err != nil && apperr.Is(err, apperr.NotFound) {
		// The gateway may deliver events for payments this system never
		// initiated; acknowledged so the gateway stops retrying.
		s.logger.Warn("Webhook for unknown gateway order",
			zap.String("gateway_order_id", event.GatewayOrderID))
		return nil
	}
	return err
}

// settle performs the single idempotent pending-to-completed
// transition both confirmation paths converge on.
func (s *DonationService) settle(ctx context.Context, gatewayOrderID, gatewayPaymentID, source string) (*models.Donation, error) {
	donation, alreadySettled, err := s.store.CompleteDonation(ctx, gatewayOrderID, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, store.ErrDonationNotFound) {
			return nil, apperr.New(apperr.NotFound, "donation record not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to complete donation")
	}

	if alreadySettled {
		util.DonationsDuplicateSignalsTotal.Inc()
		s.logger.Info("Donation already settled, ignoring duplicate signal",
			zap.String("donation_id", donation.ID),
			zap.String("source", source))
		return donation, nil
	}

	util.DonationsCompletedTotal.WithLabelValues(source).Inc()
	s.logger.Info("Donation completed",
		zap.String("donation_id", donation.ID),
		zap.String("gateway_payment_id", gatewayPaymentID),
		zap.String("source", source))

	if s.events != nil {
		event := &models.DonationCompletedEvent{
			BaseEvent:        models.NewBaseEvent(models.EventTypeDonationCompleted),
			DonationID:       donation.ID,
			GatewayOrderID:   gatewayOrderID,
			GatewayPaymentID: gatewayPaymentID,
			Amount:           donation.Amount,
			Source:           source,
		}
		if err := s.events.PublishDonationCompleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish DonationCompleted event", zap.Error(err))
		}
	}

	return donation, nil
}

// GetDonation retrieves a single donation. Donors may only read their
// own records.
func (s *DonationService) GetDonation(ctx context.Context, identity *auth.Identity, donationID string) (*models.Donation, error) {
	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}

	donation, err := s.store.GetDonationByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, store.ErrDonationNotFound) {
			return nil, apperr.New(apperr.NotFound, "donation not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load donation")
	}
	if donation.UserID != identity.UID {
		return nil, apperr.New(apperr.PermissionDenied, "not allowed to view this donation")
	}
	return donation, nil
}

// ListDonations returns the caller's donation history, newest first.
func (s *DonationService) ListDonations(ctx context.Context, identity *auth.Identity) ([]models.Donation, error) {
	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}

	donations, err := s.store.ListDonationsByUser(ctx, identity.UID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list donations")
	}
	return donations, nil
}

// RecordDirectDonationRequest is the hosted-checkout embedding variant
// where no pending record was pre-created.
type RecordDirectDonationRequest struct {
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	DonorName        string `json:"donor_name"`
	Message          string `json:"message"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// RecordDirectDonation handles the donation-page embedding flow. It is
// held to the same signed discipline as VerifyPayment: the signature
// must check out before anything is written. When a pending record for
// the gateway order exists it is settled normally; otherwise a
// completed record is written in one step.
func (s *DonationService) RecordDirectDonation(ctx context.Context, identity *auth.Identity, req *RecordDirectDonationRequest) (*VerifyPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "DonationService.RecordDirectDonation")
	defer span.End()

	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing payment details")
	}
	if req.Amount < 1 {
		return nil, apperr.New(apperr.InvalidArgument, "amount must be at least ₹1")
	}

	if !s.gateway.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		util.SignatureFailuresTotal.WithLabelValues(SourceCallback).Inc()
		return nil, apperr.New(apperr.PermissionDenied, "payment verification failed")
	}

	donation, err := s.settle(ctx, req.GatewayOrderID, req.GatewayPaymentID, SourceCallback)
	if err == nil {
		return &VerifyPaymentResponse{Success: true, DonationID: donation.ID}, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}
	donation = &models.Donation{
		ID:               uuid.NewString(),
		UserID:           identity.UID,
		Amount:           req.Amount,
		Currency:         currency,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Receipt:          refgen.Generate("DON"),
		DonorName:        req.DonorName,
		DonorEmail:       identity.Email,
		Message:          req.Message,
	}
	if err := s.store.InsertCompletedDonation(ctx, donation); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to record donation")
	}

	util.DonationsCompletedTotal.WithLabelValues(SourceCallback).Inc()
	s.logger.Info("Direct donation recorded",
		zap.String("donation_id", donation.ID),
		zap.String("gateway_payment_id", req.GatewayPaymentID))

	return &VerifyPaymentResponse{Success: true, DonationID: donation.ID}, nil
}
