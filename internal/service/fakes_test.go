package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stepwells-backend/internal/gateway"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/store"
)

// fakeStore is an in-memory store honoring the same conditional-write
// semantics as the Postgres implementation: stock decrements are
// all-or-nothing, status transitions check the current state under the
// lock, and donation completion is keyed on the pending status.
type fakeStore struct {
	mu         sync.Mutex
	products   map[string]*models.Product
	orders     map[string]*models.Order
	orderItems map[string][]models.OrderItem
	donations  map[string]*models.Donation
	users      map[string]*models.User
	settings   *models.Settings

	completions    int // successful pending->completed transitions
	failTransition bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:   make(map[string]*models.Product),
		orders:     make(map[string]*models.Order),
		orderItems: make(map[string][]models.OrderItem),
		donations:  make(map[string]*models.Donation),
		users:      make(map[string]*models.User),
	}
}

func (f *fakeStore) addProduct(p models.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.products[p.ID] = &cp
}

func (f *fakeStore) addUser(uid, email, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[uid] = &models.User{UID: uid, Email: email, Role: role}
}

func (f *fakeStore) stockOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeStore) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetSettings(context.Context) (*models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil {
		return nil, nil
	}
	cp := *f.settings
	return &cp, nil
}

func (f *fakeStore) CreateOrderTx(_ context.Context, order *models.Order, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range items {
		p, ok := f.products[item.ProductID]
		if !ok {
			return store.ErrProductNotFound
		}
		if p.Stock < item.Quantity {
			return &store.InsufficientStockError{
				ProductID: item.ProductID,
				Name:      item.Name,
				Available: p.Stock,
				Requested: item.Quantity,
			}
		}
	}
	for _, item := range items {
		f.products[item.ProductID].Stock -= item.Quantity
	}

	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders[order.ID] = &cp
	f.orderItems[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (f *fakeStore) ListProducts(_ context.Context, activeOnly bool) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, p := range f.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.products[p.ID]
	if !ok {
		return store.ErrProductNotFound
	}
	stock := existing.Stock // stock never moves through catalog edits
	cp := *p
	cp.Stock = stock
	cp.UpdatedAt = time.Now()
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeStore) DeactivateProduct(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return store.ErrProductNotFound
	}
	p.Active = false
	return nil
}

func (f *fakeStore) UpsertSettings(_ context.Context, settings *models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *settings
	f.settings = &cp
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderItem(nil), f.orderItems[orderID]...), nil
}

func (f *fakeStore) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrders(context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) TransitionOrderStatus(_ context.Context, orderID, newStatus, upiReference string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	if !models.CanTransition(o.Status, newStatus) {
		return nil, &store.IllegalTransitionError{From: o.Status, To: newStatus}
	}
	if f.failTransition {
		return nil, fmt.Errorf("simulated write failure")
	}

	now := time.Now()
	o.Status = newStatus
	o.UpdatedAt = now
	if upiReference != "" {
		o.UPIReference = upiReference
	}
	switch newStatus {
	case models.OrderStatusPaid:
		o.PaidAt = &now
	case models.OrderStatusShipped:
		o.ShippedAt = &now
	case models.OrderStatusDelivered:
		o.DeliveredAt = &now
	case models.OrderStatusCancelled:
		for _, item := range f.orderItems[orderID] {
			f.products[item.ProductID].Stock += item.Quantity
		}
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) CreateDonation(_ context.Context, d *models.Donation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.CreatedAt = time.Now()
	cp := *d
	f.donations[d.ID] = &cp
	return nil
}

func (f *fakeStore) CompleteDonation(_ context.Context, gatewayOrderID, gatewayPaymentID string) (*models.Donation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.donations {
		if d.GatewayOrderID != gatewayOrderID {
			continue
		}
		if d.Status != models.DonationStatusPending {
			cp := *d
			return &cp, true, nil
		}
		now := time.Now()
		d.Status = models.DonationStatusCompleted
		d.GatewayPaymentID = gatewayPaymentID
		d.PaidAt = &now
		f.completions++
		cp := *d
		return &cp, false, nil
	}
	return nil, false, store.ErrDonationNotFound
}

func (f *fakeStore) InsertCompletedDonation(_ context.Context, d *models.Donation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	d.Status = models.DonationStatusCompleted
	d.CreatedAt = now
	d.PaidAt = &now
	cp := *d
	f.donations[d.ID] = &cp
	return nil
}

func (f *fakeStore) GetDonationByID(_ context.Context, id string) (*models.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[id]
	if !ok {
		return nil, store.ErrDonationNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) ListDonationsByUser(_ context.Context, userID string) ([]models.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Donation
	for _, d := range f.donations {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) donationByGatewayOrder(gatewayOrderID string) *models.Donation {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.donations {
		if d.GatewayOrderID == gatewayOrderID {
			cp := *d
			return &cp
		}
	}
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, uid string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeStore) SetUserRole(_ context.Context, uid, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeStore) GrantAdminBootstrap(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Role == models.RoleAdmin {
			return store.ErrAdminsExist
		}
	}
	u, ok := f.users[uid]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Role = models.RoleAdmin
	return nil
}

// fakeGateway produces deterministic gateway order ids and verifies
// signatures with the real HMAC scheme, so tests can sign payloads the
// way the gateway would.
type fakeGateway struct {
	mu            sync.Mutex
	keySecret     string
	webhookSecret string
	failCreate    bool
	counter       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{keySecret: "test_key_secret", webhookSecret: "test_webhook_secret"}
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(int64, string, string, map[string]interface{}) (string, error) {
	if g.failCreate {
		return "", fmt.Errorf("gateway unavailable")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("order_fake%d", g.counter), nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return gateway.Sign([]byte(orderID+"|"+paymentID), g.keySecret) == signature
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return gateway.Sign(body, g.webhookSecret) == signature
}

// signPayment returns the signature a successful checkout would hand
// to the client.
func (g *fakeGateway) signPayment(orderID, paymentID string) string {
	return gateway.Sign([]byte(orderID+"|"+paymentID), g.keySecret)
}
