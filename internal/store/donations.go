package store

import (
	"context"
	"database/sql"
	"fmt"

	"stepwells-backend/internal/models"
)

// CreateDonation persists a pending donation carrying the gateway
// order id it will later be reconciled against.
func (s *Store) CreateDonation(ctx context.Context, d *models.Donation) error {
	query := `
		INSERT INTO donations (id, user_id, amount, currency, status, gateway_order_id,
			receipt, donor_name, donor_email, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	return s.db.QueryRowxContext(ctx, query,
		d.ID, d.UserID, d.Amount, d.Currency, d.Status, d.GatewayOrderID,
		d.Receipt, d.DonorName, d.DonorEmail, d.Message).
		Scan(&d.CreatedAt)
}

// CompleteDonation transitions the donation matching a gateway order id
// from pending to completed. The update is conditional on the current
// pending status: whichever confirmation signal arrives first performs
// the transition, any later signal observes settled=true and must treat
// the call as a no-op. A missing record returns ErrDonationNotFound.
func (s *Store) CompleteDonation(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (donation *models.Donation, alreadySettled bool, err error) {
	var d models.Donation
	err = s.db.GetContext(ctx, &d, `
		UPDATE donations
		SET status = $2, gateway_payment_id = $3, paid_at = NOW()
		WHERE gateway_order_id = $1 AND status = $4
		RETURNING *`,
		gatewayOrderID, models.DonationStatusCompleted, gatewayPaymentID,
		models.DonationStatusPending)
	if err == nil {
		return &d, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to complete donation: %w", err)
	}

	// No pending row matched: either the donation is unknown or it was
	// already settled by the other confirmation path.
	err = s.db.GetContext(ctx, &d,
		"SELECT * FROM donations WHERE gateway_order_id = $1", gatewayOrderID)
	if err == sql.ErrNoRows {
		return nil, false, ErrDonationNotFound
	}
	if err != nil {
		return nil, false, err
	}
	return &d, true, nil
}

// InsertCompletedDonation writes a donation that is already settled.
// Used by the direct hosted-checkout flow where no pending record was
// pre-created; callers must have verified the gateway signature first.
func (s *Store) InsertCompletedDonation(ctx context.Context, d *models.Donation) error {
	query := `
		INSERT INTO donations (id, user_id, amount, currency, status, gateway_order_id,
			gateway_payment_id, receipt, donor_name, donor_email, message, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING created_at`

	return s.db.QueryRowxContext(ctx, query,
		d.ID, d.UserID, d.Amount, d.Currency, models.DonationStatusCompleted,
		d.GatewayOrderID, d.GatewayPaymentID, d.Receipt, d.DonorName,
		d.DonorEmail, d.Message).
		Scan(&d.CreatedAt)
}

// GetDonationByID retrieves a donation by ID
func (s *Store) GetDonationByID(ctx context.Context, id string) (*models.Donation, error) {
	var d models.Donation
	err := s.db.GetContext(ctx, &d, "SELECT * FROM donations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrDonationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDonationsByUser retrieves a donor's donations, newest first.
func (s *Store) ListDonationsByUser(ctx context.Context, userID string) ([]models.Donation, error) {
	var donations []models.Donation
	err := s.db.SelectContext(ctx, &donations,
		"SELECT * FROM donations WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return donations, err
}
