package models

import "time"

// Product represents a product in the shop catalog.
// Price is stored in whole rupees; stock must never go negative.
type Product struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	Active    bool      `db:"active" json:"active"`
	Category  string    `db:"category" json:"category"`
	Image     string    `db:"image" json:"image,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ShippingAddress is embedded in an order at creation time.
type ShippingAddress struct {
	Name    string `db:"ship_name" json:"name"`
	Address string `db:"ship_address" json:"address"`
	City    string `db:"ship_city" json:"city,omitempty"`
	State   string `db:"ship_state" json:"state,omitempty"`
	Pincode string `db:"ship_pincode" json:"pincode,omitempty"`
	Phone   string `db:"ship_phone" json:"phone,omitempty"`
}

// Order represents a shop order. Line items are snapshotted at creation
// and never change afterwards; catalog price edits must not alter a
// placed order.
type Order struct {
	ID              string `db:"id" json:"id"`
	OrderRef        string `db:"order_ref" json:"order_ref"`
	UserID          string `db:"user_id" json:"user_id"`
	TotalAmount     int64  `db:"total_amount" json:"total_amount"`
	Status          string `db:"status" json:"status"`
	PaymentMethod   string `db:"payment_method" json:"payment_method"`
	UPIReference    string `db:"upi_reference" json:"upi_reference,omitempty"`
	ShippingAddress `json:"shipping_address"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	ShippedAt       *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
}

// OrderItem is a snapshotted line item of an order.
type OrderItem struct {
	ID        int64  `db:"id" json:"-"`
	OrderID   string `db:"order_id" json:"-"`
	ProductID string `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
	Image     string `db:"image" json:"image,omitempty"`
}

// Subtotal returns the snapshotted line total.
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Donation represents a monetary contribution with its own lifecycle,
// reconciled against gateway confirmations.
type Donation struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	Amount           int64      `db:"amount" json:"amount"`
	Currency         string     `db:"currency" json:"currency"`
	Status           string     `db:"status" json:"status"`
	GatewayOrderID   string     `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	Receipt          string     `db:"receipt" json:"receipt"`
	DonorName        string     `db:"donor_name" json:"donor_name,omitempty"`
	DonorEmail       string     `db:"donor_email" json:"donor_email,omitempty"`
	Message          string     `db:"message" json:"message,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	PaidAt           *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

// User mirrors the authenticated identity. Role is the sole
// authorization signal and is only ever read server-side.
type User struct {
	UID         string    `db:"uid" json:"uid"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"display_name,omitempty"`
	Role        string    `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Settings holds the payment instructions shown to shop customers.
type Settings struct {
	UPIID         string `db:"upi_id" json:"upi_id"`
	BankName      string `db:"bank_name" json:"bank_name"`
	AccountNumber string `db:"account_number" json:"account_number"`
	IFSCCode      string `db:"ifsc_code" json:"ifsc_code"`
	AccountHolder string `db:"account_holder" json:"account_holder"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// ValidOrderStatuses is the fixed set accepted by status updates.
var ValidOrderStatuses = []string{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValidOrderStatus reports whether s is in the fixed valid set.
func IsValidOrderStatus(s string) bool {
	for _, v := range ValidOrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Donation statuses
const (
	DonationStatusPending   = "pending"
	DonationStatusCompleted = "completed"
	DonationStatusFailed    = "failed"
)

// User roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Payment methods
const (
	PaymentMethodManual  = "manual"
	PaymentMethodGateway = "razorpay"
)

// ProcessedEvent records a handled webhook/broker event for idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
