package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/gateway"
	"github.com/warungku/backend/internal/messaging"
	"github.com/warungku/backend/internal/repository"
)

// ReconcileService converts a settled payment into exactly one paid Order
// with exactly one stock adjustment, no matter how many times or in what
// order the gateway webhook and the client finalize call arrive.
type ReconcileService struct {
	orders    repository.OrderRepository
	intents   repository.IntentRepository
	stock     repository.StockLedger
	publisher messaging.Publisher
	verifier  *gateway.SignatureVerifier
}

func NewReconcileService(
	orders repository.OrderRepository,
	intents repository.IntentRepository,
	stock repository.StockLedger,
	publisher messaging.Publisher,
	verifier *gateway.SignatureVerifier,
) *ReconcileService {
	return &ReconcileService{
		orders:    orders,
		intents:   intents,
		stock:     stock,
		publisher: publisher,
		verifier:  verifier,
	}
}

// HandleNotification processes a gateway webhook. Authentication failures
// are the only error surfaced to the gateway; an unmatched payment id is
// acknowledged as a no-op so the gateway does not retry-storm us.
func (s *ReconcileService) HandleNotification(ctx context.Context, n *gateway.Notification) error {
	if err := s.verifier.Verify(n); err != nil {
		return err
	}

	slog.Info("Gateway notification received",
		"payment_id", n.OrderID, "transaction_status", n.TransactionStatus)

	_, err := s.Reconcile(ctx, n.OrderID, n.Outcome(), n.PaymentType)
	return err
}

// Finalize is the client-initiated twin of the webhook path: called right
// after the payment widget reports success, it runs the identical paid
// reconciliation so the customer does not wait for the webhook. The id may
// be an intent id, an order id, or the payment id itself.
func (s *ReconcileService) Finalize(ctx context.Context, id string) (*entity.Order, error) {
	paymentID := id

	intent, err := s.intents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent != nil {
		if intent.PaymentID == "" {
			return nil, fmt.Errorf("%w: intent %s has no payment session", entity.ErrConflict, id)
		}
		paymentID = intent.PaymentID
	} else {
		order, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil {
			if order.Payment.PaymentID == "" {
				// Staff-created orders are paid at creation and have
				// nothing to finalize.
				return order, nil
			}
			paymentID = order.Payment.PaymentID
		}
	}

	order, err := s.Reconcile(ctx, paymentID, gateway.OutcomePaid, "")
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: no intent or order for %s", entity.ErrNotFound, id)
	}
	return order, nil
}

// Reconcile drives the payment state for one payment id toward its terminal
// outcome. It is safe to call concurrently and repeatedly: the first check
// returns an already-paid order unchanged, and all writes underneath are
// single-winner claims keyed by the payment id.
func (s *ReconcileService) Reconcile(ctx context.Context, paymentID string, outcome gateway.Outcome, method string) (*entity.Order, error) {
	order, err := s.orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if order != nil && order.Payment.Status == entity.PaymentPaid {
		return order, nil
	}

	switch outcome {
	case gateway.OutcomePaid:
		return s.reconcilePaid(ctx, paymentID, order, method)
	case gateway.OutcomeCanceled:
		return nil, s.reconcileCanceled(ctx, paymentID, order)
	default:
		return order, nil
	}
}

func (s *ReconcileService) reconcilePaid(ctx context.Context, paymentID string, order *entity.Order, method string) (*entity.Order, error) {
	now := time.Now()

	if order == nil {
		// No order row: either checkout crashed before creating it, or
		// this notification refers to something already finalized and
		// cleaned up. Only an intent can tell the two apart.
		intent, err := s.intents.FindByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if intent == nil {
			slog.Info("Notification without matching intent or order, acknowledging",
				"payment_id", paymentID)
			return nil, nil
		}

		order = orderFromIntent(intent, method, now)
		created, err := s.orders.Create(ctx, order)
		if err != nil {
			return nil, err
		}
		if created {
			s.settlePaid(ctx, order)
			return order, nil
		}
		// A concurrent reconciliation inserted the order between our
		// lookup and the insert; fall through and claim the row it made.
		order, err = s.orders.FindByPaymentID(ctx, paymentID)
		if err != nil || order == nil {
			return order, err
		}
		if order.Payment.Status == entity.PaymentPaid {
			return order, nil
		}
	}

	claimed, err := s.orders.ClaimPayment(ctx, paymentID, method, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race: either another caller paid it (return theirs
		// unchanged) or a cancellation deleted it (acknowledge no-op).
		return s.orders.FindByPaymentID(ctx, paymentID)
	}

	order.Payment.Status = entity.PaymentPaid
	order.Payment.Method = method
	order.Payment.PaidAt = &now
	s.settlePaid(ctx, order)
	return order, nil
}

// settlePaid applies the side effects owned by the reconciliation winner:
// the one stock decrement, intent settlement, and the paid event. The order
// is already financially settled externally, so failures here are logged as
// operational alerts, never rolled back.
func (s *ReconcileService) settlePaid(ctx context.Context, order *entity.Order) {
	if err := s.stock.Decrement(ctx, order.ID, order.Items); err != nil {
		slog.Error("Stock decrement failed after payment capture",
			"order_id", order.ID, "payment_id", order.Payment.PaymentID, "err", err)
	}

	intent, err := s.intents.FindByPaymentID(ctx, order.Payment.PaymentID)
	if err != nil {
		slog.Error("Failed to look up intent for settlement", "payment_id", order.Payment.PaymentID, "err", err)
	} else if intent != nil {
		if err := s.intents.Settle(ctx, intent.ID); err != nil {
			slog.Error("Failed to settle intent", "intent_id", intent.ID, "err", err)
		}
	}

	event := entity.OrderPaid{
		OrderID:    order.ID,
		PaymentID:  order.Payment.PaymentID,
		Items:      order.Items,
		TotalPrice: order.TotalPrice,
		Method:     order.Payment.Method,
		PaidAt:     *order.Payment.PaidAt,
	}
	if err := s.publisher.PublishEvent(ctx, messaging.TopicOrdersPaid, order.ID, event); err != nil {
		slog.Error("Failed to publish OrderPaid event", "order_id", order.ID, "err", err)
	}

	slog.Info("Order reconciled as paid", "order_id", order.ID, "payment_id", order.Payment.PaymentID)
}

func (s *ReconcileService) reconcileCanceled(ctx context.Context, paymentID string, order *entity.Order) error {
	var removed bool
	if order != nil {
		deleted, err := s.orders.DeleteUnpaid(ctx, order.ID)
		if err != nil {
			return err
		}
		if !deleted {
			// The paid path won between our read and this delete; the
			// order stays.
			return nil
		}
		removed = true
	}

	intent, err := s.intents.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if intent != nil {
		if err := s.intents.Cancel(ctx, intent.ID); err != nil {
			return err
		}
		removed = true
	}

	if removed {
		event := entity.OrderCanceled{PaymentID: paymentID, CanceledAt: time.Now()}
		if order != nil {
			event.OrderID = order.ID
		}
		if err := s.publisher.PublishEvent(ctx, messaging.TopicOrdersCanceled, paymentID, event); err != nil {
			slog.Error("Failed to publish OrderCanceled event", "payment_id", paymentID, "err", err)
		}
		slog.Info("Payment attempt canceled", "payment_id", paymentID)
	}
	return nil
}

func orderFromIntent(intent *entity.PaymentIntent, method string, paidAt time.Time) *entity.Order {
	return &entity.Order{
		ID:            uuid.NewString(),
		Items:         intent.Items,
		TotalPrice:    intent.TotalPrice,
		OrderType:     intent.OrderType,
		TableNumber:   intent.TableNumber,
		CustomerName:  intent.CustomerName,
		CustomerPhone: intent.CustomerPhone,
		Status:        entity.StatusPending,
		Payment: entity.Payment{
			PaymentID: intent.PaymentID,
			Status:    entity.PaymentPaid,
			Method:    method,
			PaidAt:    &paidAt,
		},
		CreatedAt: time.Now(),
	}
}
