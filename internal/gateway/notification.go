package gateway

// Notification is the asynchronous status push from the payment gateway.
// Delivery is at-least-once and possibly out of order; GrossAmount is kept
// as the raw string because the signature is computed over the exact bytes
// the gateway sent.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	SignatureKey      string `json:"signature_key"`
	PaymentType       string `json:"payment_type,omitempty"`
}

// Outcome is the reconciliation-relevant reading of a transaction status.
type Outcome int

const (
	// OutcomeIgnored: recognized but not actionable (pending, refunds,
	// chargebacks, unknown statuses). Acknowledge, change nothing.
	OutcomeIgnored Outcome = iota
	// OutcomePaid: funds captured, convert the intent into a paid order.
	OutcomePaid
	// OutcomeCanceled: the attempt is dead, tear down the intent.
	OutcomeCanceled
)

// Outcome maps the gateway's transaction-status enum onto the three actions
// reconciliation knows about.
func (n *Notification) Outcome() Outcome {
	switch n.TransactionStatus {
	case "settlement", "capture":
		return OutcomePaid
	case "cancel", "deny", "expire":
		return OutcomeCanceled
	default:
		// "pending", "refund", "chargeback", anything new the gateway
		// ships: acknowledged, no action.
		return OutcomeIgnored
	}
}
