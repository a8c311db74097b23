package entity

import "fmt"

// Kitchen workflow statuses. Delivered is terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDelivered = "delivered"
)

// ValidateTransition reports whether an order may move from one kitchen
// status to another. Targets outside the enum and any transition out of
// delivered are rejected; the sales counter relies on delivered being
// entered at most once.
func ValidateTransition(from, to string) error {
	switch to {
	case StatusPending, StatusConfirmed, StatusDelivered:
	default:
		return fmt.Errorf("%w: unknown order status %q", ErrConflict, to)
	}
	if from == StatusDelivered {
		return fmt.Errorf("%w: order already delivered", ErrConflict)
	}
	return nil
}
