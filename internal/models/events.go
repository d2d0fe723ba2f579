package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeDonationCreated    = "DONATION_CREATED"
	EventTypeDonationCompleted  = "DONATION_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderCreatedEvent published when an order is placed and stock reserved
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	OrderRef    string          `json:"order_ref"`
	UserID      string          `json:"user_id"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on every admin status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	ToStatus string `json:"to_status"`
	ActorUID string `json:"actor_uid"`
}

// OrderCancelledEvent published when a cancellation restored stock
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Items   []OrderItemData `json:"items"`
}

// DonationCreatedEvent published when a pending donation is recorded
type DonationCreatedEvent struct {
	BaseEvent
	DonationID     string `json:"donation_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// DonationCompletedEvent published when reconciliation settled a donation
type DonationCompletedEvent struct {
	BaseEvent
	DonationID       string `json:"donation_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Amount           int64  `json:"amount"`
	Source           string `json:"source"` // "callback" or "webhook"
}
