package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stepwells-backend/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Sentinel errors surfaced to the service layer.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrDonationNotFound = errors.New("donation not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAdminsExist      = errors.New("an admin already exists")
)

// InsufficientStockError reports which product blocked an order and how
// many units were actually available.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Name, e.Available, e.Requested)
}

// IllegalTransitionError reports a status change forbidden by the
// current order state.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products, optionally only active ones.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	query := "SELECT * FROM products ORDER BY category, name"
	if activeOnly {
		query = "SELECT * FROM products WHERE active ORDER BY category, name"
	}
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query)
	return products, err
}

// CreateProduct inserts a new catalog product.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, price, stock, active, category, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Price, p.Stock, p.Active, p.Category, p.Image).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// UpdateProduct updates catalog fields of a product. Stock is not
// touched here; stock only moves through order creation and
// cancellation.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, active = $4, category = $5, image = $6, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Price, p.Active, p.Category, p.Image)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeactivateProduct soft-deletes a product. Products referenced by
// placed orders are never removed, only hidden from the catalog.
func (s *Store) DeactivateProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET active = FALSE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetSettings retrieves the payment instruction settings row, or nil
// when none has been saved yet.
func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := s.db.GetContext(ctx, &settings,
		"SELECT upi_id, bank_name, account_number, ifsc_code, account_holder FROM settings WHERE id = 'general'")
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpsertSettings saves the payment instruction settings.
func (s *Store) UpsertSettings(ctx context.Context, settings *models.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, upi_id, bank_name, account_number, ifsc_code, account_holder, updated_at)
		VALUES ('general', $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			upi_id = EXCLUDED.upi_id,
			bank_name = EXCLUDED.bank_name,
			account_number = EXCLUDED.account_number,
			ifsc_code = EXCLUDED.ifsc_code,
			account_holder = EXCLUDED.account_holder,
			updated_at = NOW()`,
		settings.UPIID, settings.BankName, settings.AccountNumber,
		settings.IFSCCode, settings.AccountHolder)
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
