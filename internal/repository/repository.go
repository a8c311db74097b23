package repository

import (
	"context"
	"time"

	"github.com/warungku/backend/internal/entity"
)

// IntentRepository handles persistence for PaymentIntents.
//
// Find methods return (nil, nil) when no row matches: an absent intent is a
// valid outcome (already finalized and cleaned up, or never existed), not an
// error.
type IntentRepository interface {
	Create(ctx context.Context, intent *entity.PaymentIntent) error
	// AttachPaymentSession records the external payment session. Calling it
	// again with the same paymentID is a no-op; a different paymentID is
	// rejected with entity.ErrConflict.
	AttachPaymentSession(ctx context.Context, intentID, paymentID, redirectURL, token string) error
	FindByID(ctx context.Context, id string) (*entity.PaymentIntent, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*entity.PaymentIntent, error)
	// Settle and Cancel are terminal: they mark the intent and delete it in
	// one transaction. Both are no-ops if the intent is already gone.
	Settle(ctx context.Context, intentID string) error
	Cancel(ctx context.Context, intentID string) error
	// FindStale returns created-state intents older than the cutoff.
	FindStale(ctx context.Context, olderThan time.Time) ([]entity.PaymentIntent, error)
}

// OrderRepository handles persistence for Orders. The unique index on
// payment_id is the linearization point for reconciliation: Create and
// ClaimPayment are the only ways an order becomes paid, and each succeeds at
// most once per payment id.
type OrderRepository interface {
	// Create inserts the order if no order with its payment id exists yet.
	// Returns false when a conflicting order won the race.
	Create(ctx context.Context, order *entity.Order) (created bool, err error)
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*entity.Order, error)
	FindRecent(ctx context.Context, limit int) ([]entity.Order, error)
	// ClaimPayment atomically moves the order's payment sub-status from
	// pending to paid. Returns false if another caller claimed it first or
	// the order no longer exists.
	ClaimPayment(ctx context.Context, paymentID, method string, paidAt time.Time) (claimed bool, err error)
	// DeleteUnpaid removes the order unless its payment is already paid.
	DeleteUnpaid(ctx context.Context, orderID string) (deleted bool, err error)
	DeleteUnpaidByPaymentID(ctx context.Context, paymentID string) (deleted bool, err error)
	// SetStatus moves the kitchen status unless the order is already
	// delivered. Returns false when the guard rejects the write.
	SetStatus(ctx context.Context, orderID, status string) (changed bool, err error)
}

// ProductRepository handles persistence for Products.
type ProductRepository interface {
	FindAll(ctx context.Context) ([]entity.Product, error)
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	// Seed inserts initial products if none exist.
	Seed(ctx context.Context, products []entity.Product) error
	// IncrementSold bumps per-product sales counters. Callers guarantee
	// exactly-once via the delivered-state claim.
	IncrementSold(ctx context.Context, items []entity.OrderItem) error
}

// StockLedger applies per-order stock effects at most once in each
// direction. Decrement skips (and reports) products without sufficient
// stock; Restore adds quantities back only if a decrement was recorded for
// the same order, so the net effect per order is always zero or one
// decrement.
type StockLedger interface {
	Decrement(ctx context.Context, orderID string, items []entity.OrderItem) error
	Restore(ctx context.Context, orderID string, items []entity.OrderItem) error
}
