package service

import (
	"context"
	"errors"

	"stepwells-backend/config"
	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/refgen"
	"stepwells-backend/internal/store"
	"stepwells-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface needed by OrderService.
type OrderStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetSettings(ctx context.Context) (*models.Settings, error)
	CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID, newStatus, upiReference string) (*models.Order, error)
}

// SettingsCache is the optional read-through cache for the payment
// instruction settings.
type SettingsCache interface {
	GetCachedSettings(ctx context.Context) (*models.Settings, error)
	CacheSettings(ctx context.Context, settings *models.Settings) error
}

// OrderEvents is the subset of the event publisher used here.
type OrderEvents interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// OrderService handles shop order creation and status transitions.
type OrderService struct {
	store    OrderStore
	cache    SettingsCache
	events   OrderEvents
	gate     *auth.Gate
	defaults config.PaymentDefaults
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	cache SettingsCache,
	events OrderEvents,
	gate *auth.Gate,
	defaults config.PaymentDefaults,
) *OrderService {
	return &OrderService{
		store:    store,
		cache:    cache,
		events:   events,
		gate:     gate,
		defaults: defaults,
		logger:   util.GetLogger(),
	}
}

// OrderItemRequest represents a requested cart line. Price is accepted
// for wire compatibility with older clients but never used; the catalog
// price is authoritative.
type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Price     int64  `json:"price,omitempty"`
}

// CreateOrderRequest represents a request to create a shop order.
type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
}

// CreateOrderResponse returns the identifiers and the payment
// instructions the customer pays against.
type CreateOrderResponse struct {
	OrderID        string          `json:"order_id"`
	OrderRef       string          `json:"order_ref"`
	TotalAmount    int64           `json:"total_amount"`
	PaymentDetails models.Settings `json:"payment_details"`
}

// CreateOrder validates the cart against the catalog, computes the
// authoritative total, reserves stock, and persists the order. The
// stock decrement and the order insert share one transaction, so
// concurrent orders cannot jointly oversell a product.
func (s *OrderService) CreateOrder(ctx context.Context, identity *auth.Identity, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in to order")
	}
	if len(req.Items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.New(apperr.InvalidArgument, "cart is empty")
	}
	if req.ShippingAddress.Name == "" || req.ShippingAddress.Address == "" {
		util.OrdersFailedTotal.WithLabelValues("missing_shipping").Inc()
		return nil, apperr.New(apperr.InvalidArgument, "shipping address is required")
	}

	// Validate items and compute the total from catalog prices only;
	// client-supplied prices are ignored.
	var totalAmount int64
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, apperr.New(apperr.InvalidArgument, "invalid quantity for product %s", item.ProductID)
		}

		product, err := s.store.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
				return nil, apperr.New(apperr.NotFound, "product %s not found", item.ProductID)
			}
			return nil, apperr.Wrap(err, apperr.Internal, "failed to load product")
		}
		if !product.Active {
			return nil, apperr.New(apperr.NotFound, "product %s not found", item.ProductID)
		}
		if product.Stock < item.Quantity {
			util.StockRejectionsTotal.WithLabelValues(product.ID).Inc()
			return nil, apperr.New(apperr.FailedPrecondition,
				"insufficient stock for %s. Available: %d", product.Name, product.Stock)
		}

		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			Image:     product.Image,
		})
		totalAmount += product.Price * int64(item.Quantity)
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		OrderRef:        refgen.Generate("ORD"),
		UserID:          identity.UID,
		TotalAmount:     totalAmount,
		Status:          models.OrderStatusPending,
		PaymentMethod:   models.PaymentMethodManual,
		ShippingAddress: req.ShippingAddress,
	}

	if err := s.store.CreateOrderTx(ctx, order, items); err != nil {
		var stockErr *store.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			// A concurrent order drained the stock between the
			// validation read and the conditional decrement.
			util.StockRejectionsTotal.WithLabelValues(stockErr.ProductID).Inc()
			return nil, apperr.New(apperr.FailedPrecondition,
				"insufficient stock for %s. Available: %d", stockErr.Name, stockErr.Available)
		case errors.Is(err, store.ErrProductNotFound):
			return nil, apperr.New(apperr.NotFound, "product not found")
		default:
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, apperr.Wrap(err, apperr.Internal, "failed to create order")
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_ref", order.OrderRef),
		zap.Int64("total_amount", totalAmount))

	if s.events != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent:   models.NewBaseEvent(models.EventTypeOrderCreated),
			OrderID:     order.ID,
			OrderRef:    order.OrderRef,
			UserID:      order.UserID,
			TotalAmount: totalAmount,
			Items:       toEventItems(items),
		}
		if err := s.events.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return &CreateOrderResponse{
		OrderID:        order.ID,
		OrderRef:       order.OrderRef,
		TotalAmount:    totalAmount,
		PaymentDetails: s.paymentDetails(ctx),
	}, nil
}

// paymentDetails loads the payment instruction snapshot: cache first,
// then the settings row, then the configured defaults.
func (s *OrderService) paymentDetails(ctx context.Context) models.Settings {
	if s.cache != nil {
		if cached, err := s.cache.GetCachedSettings(ctx); err == nil && cached != nil {
			return *cached
		}
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("Failed to load settings, using defaults", zap.Error(err))
		settings = nil
	}
	if settings == nil {
		settings = &models.Settings{
			UPIID:         s.defaults.UPIID,
			BankName:      s.defaults.BankName,
			AccountNumber: s.defaults.AccountNumber,
			IFSCCode:      s.defaults.IFSCCode,
			AccountHolder: s.defaults.AccountHolder,
		}
	}

	if s.cache != nil {
		if err := s.cache.CacheSettings(ctx, settings); err != nil {
			s.logger.Warn("Failed to cache settings", zap.Error(err))
		}
	}
	return *settings
}

// UpdateOrderStatus performs an admin status transition. A transition
// to cancelled restores the stock reservation atomically with the
// status write.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, identity *auth.Identity, orderID, newStatus, upiReference string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if err := s.gate.RequireAdmin(ctx, identity); err != nil {
		return nil, err
	}
	if orderID == "" || newStatus == "" {
		return nil, apperr.New(apperr.InvalidArgument, "order ID and status are required")
	}
	if !models.IsValidOrderStatus(newStatus) {
		return nil, apperr.New(apperr.InvalidArgument, "invalid status: %s", newStatus)
	}

	order, err := s.store.TransitionOrderStatus(ctx, orderID, newStatus, upiReference)
	if err != nil {
		var illegalErr *store.IllegalTransitionError
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			return nil, apperr.New(apperr.NotFound, "order not found")
		case errors.As(err, &illegalErr):
			return nil, apperr.New(apperr.FailedPrecondition,
				"cannot transition order from %s to %s", illegalErr.From, illegalErr.To)
		default:
			return nil, apperr.Wrap(err, apperr.Internal, "failed to update order status")
		}
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(newStatus).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("status", newStatus),
		zap.String("actor", identity.UID))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   orderID,
			ToStatus:  newStatus,
			ActorUID:  identity.UID,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	if newStatus == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
		if s.events != nil {
			items, err := s.store.GetOrderItems(ctx, orderID)
			if err != nil {
				s.logger.Error("Failed to load items for cancellation event", zap.Error(err))
			} else {
				event := &models.OrderCancelledEvent{
					BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
					OrderID:   orderID,
					Items:     toEventItems(items),
				}
				if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
					s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
				}
			}
		}
	}

	return order, nil
}

// GetOrder retrieves an order with its items. Customers may only read
// their own orders; admins may read any.
func (s *OrderService) GetOrder(ctx context.Context, identity *auth.Identity, orderID string) (*models.Order, []models.OrderItem, error) {
	if identity == nil {
		return nil, nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, nil, apperr.New(apperr.NotFound, "order not found")
		}
		return nil, nil, apperr.Wrap(err, apperr.Internal, "failed to load order")
	}

	if order.UserID != identity.UID {
		if err := s.gate.RequireAdmin(ctx, identity); err != nil {
			return nil, nil, err
		}
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.Internal, "failed to load order items")
	}

	return order, items, nil
}

// ListOrders returns the caller's orders, or all orders for admins.
func (s *OrderService) ListOrders(ctx context.Context, identity *auth.Identity) ([]models.Order, error) {
	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}

	isAdmin, err := s.gate.VerifyAdmin(ctx, identity)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to check role")
	}

	if isAdmin {
		return s.store.ListOrders(ctx)
	}
	return s.store.ListOrdersByUser(ctx, identity.UID)
}

func toEventItems(items []models.OrderItem) []models.OrderItemData {
	out := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}
