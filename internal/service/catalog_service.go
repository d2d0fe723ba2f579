package service

import (
	"context"
	"errors"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/store"
	"stepwells-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogStore is the persistence surface needed by CatalogService.
type CatalogStore interface {
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeactivateProduct(ctx context.Context, id string) error
	UpsertSettings(ctx context.Context, settings *models.Settings) error
}

// SettingsInvalidator drops the cached settings snapshot after an
// admin update.
type SettingsInvalidator interface {
	InvalidateSettings(ctx context.Context) error
}

// CatalogService handles admin CRUD for products and settings. Stock
// is deliberately absent from product updates; it only moves through
// order creation and cancellation.
type CatalogService struct {
	store  CatalogStore
	cache  SettingsInvalidator
	gate   *auth.Gate
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, cache SettingsInvalidator, gate *auth.Gate) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		gate:   gate,
		logger: util.GetLogger(),
	}
}

// ListProducts returns the catalog. Unauthenticated and customer
// callers see active products only; admins see everything.
func (s *CatalogService) ListProducts(ctx context.Context, identity *auth.Identity) ([]models.Product, error) {
	activeOnly := true
	if identity != nil {
		isAdmin, err := s.gate.VerifyAdmin(ctx, identity)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "failed to check role")
		}
		activeOnly = !isAdmin
	}
	return s.store.ListProducts(ctx, activeOnly)
}

// ProductRequest carries admin-editable product fields.
type ProductRequest struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	Active   *bool  `json:"active"`
	Category string `json:"category"`
	Image    string `json:"image"`
}

// CreateProduct adds a catalog product.
func (s *CatalogService) CreateProduct(ctx context.Context, identity *auth.Identity, req *ProductRequest) (*models.Product, error) {
	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if err := s.gate.RequireAdmin(ctx, identity); err != nil {
		return nil, err
	}
	if req.Name == "" || req.Price <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "name and a positive price are required")
	}
	if req.Stock < 0 {
		return nil, apperr.New(apperr.InvalidArgument, "stock cannot be negative")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	product := &models.Product{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		Active:   active,
		Category: req.Category,
		Image:    req.Image,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to create product")
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name))
	return product, nil
}

// UpdateProduct edits catalog fields of a product.
func (s *CatalogService) UpdateProduct(ctx context.Context, identity *auth.Identity, productID string, req *ProductRequest) (*models.Product, error) {
	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if err := s.gate.RequireAdmin(ctx, identity); err != nil {
		return nil, err
	}
	if req.Name == "" || req.Price <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "name and a positive price are required")
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, apperr.New(apperr.NotFound, "product not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load product")
	}

	product.Name = req.Name
	product.Price = req.Price
	product.Category = req.Category
	product.Image = req.Image
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to update product")
	}
	return product, nil
}

// DeleteProduct soft-deletes a product. Once any order references a
// product it survives as an inactive row so order snapshots stay
// auditable.
func (s *CatalogService) DeleteProduct(ctx context.Context, identity *auth.Identity, productID string) error {
	if identity == nil {
		return apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if err := s.gate.RequireAdmin(ctx, identity); err != nil {
		return err
	}

	if err := s.store.DeactivateProduct(ctx, productID); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return apperr.New(apperr.NotFound, "product not found")
		}
		return apperr.Wrap(err, apperr.Internal, "failed to delete product")
	}

	s.logger.Info("Product deactivated", zap.String("product_id", productID))
	return nil
}

// UpdateSettings saves new payment instructions and invalidates the
// cached snapshot so the next order sees them.
func (s *CatalogService) UpdateSettings(ctx context.Context, identity *auth.Identity, settings *models.Settings) error {
	if identity == nil {
		return apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if err := s.gate.RequireAdmin(ctx, identity); err != nil {
		return err
	}

	if err := s.store.UpsertSettings(ctx, settings); err != nil {
		return apperr.Wrap(err, apperr.Internal, "failed to save settings")
	}
	if s.cache != nil {
		if err := s.cache.InvalidateSettings(ctx); err != nil {
			s.logger.Warn("Failed to invalidate settings cache", zap.Error(err))
		}
	}

	s.logger.Info("Payment settings updated", zap.String("updated_by", identity.UID))
	return nil
}
