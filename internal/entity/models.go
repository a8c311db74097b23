package entity

import (
	"time"
)

// Product represents a menu item.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
	Stock       int    `json:"stock"`
	Sold        int    `json:"sold"`
}

// OrderItem is a line item within an order or a payment intent.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
}

// Order type determines which customer fields are relevant.
const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
)

// PaymentIntent is the provisional checkout snapshot. It exists from the
// moment checkout begins until reconciliation or cancellation deletes it.
type PaymentIntent struct {
	ID            string      `json:"id"`
	Items         []OrderItem `json:"items"`
	TotalPrice    int64       `json:"total_price"`
	OrderType     string      `json:"order_type"`
	TableNumber   string      `json:"table_number,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	Status        string      `json:"status"` // "created", "settled", "canceled"
	PaymentID     string      `json:"payment_id,omitempty"`
	RedirectURL   string      `json:"redirect_url,omitempty"`
	SessionToken  string      `json:"session_token,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// PaymentIntent statuses. Settled and canceled are terminal; the row is
// deleted as soon as either is reached.
const (
	IntentCreated  = "created"
	IntentSettled  = "settled"
	IntentCanceled = "canceled"
)

// Payment is the payment sub-record nested in an Order. PaymentID correlates
// the order with the intent it came from; it is the idempotency key for the
// whole reconciliation subsystem.
type Payment struct {
	PaymentID string     `json:"payment_id,omitempty"`
	Status    string     `json:"status"` // "pending", "paid", "failed"
	Method    string     `json:"method,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// Payment statuses.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Order is the durable, staff-visible record.
type Order struct {
	ID            string      `json:"id"`
	Items         []OrderItem `json:"items"`
	TotalPrice    int64       `json:"total_price"`
	OrderType     string      `json:"order_type"`
	TableNumber   string      `json:"table_number,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	Status        string      `json:"status"` // "pending", "confirmed", "delivered"
	Payment       Payment     `json:"payment"`
	CreatedAt     time.Time   `json:"created_at"`
}

// --- Events ---

// OrderPaid is emitted once per order, when reconciliation captures payment.
type OrderPaid struct {
	OrderID    string      `json:"order_id"`
	PaymentID  string      `json:"payment_id"`
	Items      []OrderItem `json:"items"`
	TotalPrice int64       `json:"total_price"`
	Method     string      `json:"method,omitempty"`
	PaidAt     time.Time   `json:"paid_at"`
}

func (e OrderPaid) EventType() string { return "OrderPaid" }

// OrderCanceled is emitted when an unpaid order or intent is abandoned.
type OrderCanceled struct {
	OrderID    string    `json:"order_id,omitempty"`
	PaymentID  string    `json:"payment_id,omitempty"`
	CanceledAt time.Time `json:"canceled_at"`
}

func (e OrderCanceled) EventType() string { return "OrderCanceled" }

// OrderDelivered is emitted when staff complete an order.
type OrderDelivered struct {
	OrderID     string    `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (e OrderDelivered) EventType() string { return "OrderDelivered" }

// Event represents a domain event published to the message broker.
type Event interface {
	EventType() string
}
