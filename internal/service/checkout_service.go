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

// CheckoutService owns the pre-payment half of an order's life: creating the
// intent, opening the payment session, and tearing everything down when the
// customer walks away.
type CheckoutService struct {
	intents   repository.IntentRepository
	orders    repository.OrderRepository
	products  repository.ProductRepository
	stock     repository.StockLedger
	sessions  gateway.SessionCreator
	publisher messaging.Publisher

	checkoutTTL time.Duration
}

func NewCheckoutService(
	intents repository.IntentRepository,
	orders repository.OrderRepository,
	products repository.ProductRepository,
	stock repository.StockLedger,
	sessions gateway.SessionCreator,
	publisher messaging.Publisher,
	checkoutTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		intents:     intents,
		orders:      orders,
		products:    products,
		stock:       stock,
		sessions:    sessions,
		publisher:   publisher,
		checkoutTTL: checkoutTTL,
	}
}

// CheckoutItem is one requested line item; price and name are resolved from
// the product catalog, never trusted from the client.
type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
}

type CheckoutRequest struct {
	Items         []CheckoutItem `json:"items"`
	OrderType     string         `json:"order_type"`
	TableNumber   string         `json:"table_number,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
}

// CheckoutResult is what the payment page needs: the pending order for UI
// visibility plus the gateway session.
type CheckoutResult struct {
	Order       *entity.Order `json:"order"`
	PaymentID   string        `json:"payment_id"`
	Token       string        `json:"token"`
	RedirectURL string        `json:"redirect_url"`
}

// Checkout creates the payment intent, opens the gateway session and creates
// the pending order that reconciliation will later claim. If the session
// call fails the just-created intent is rolled back so no orphan survives.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: checkout must have at least one item", entity.ErrConflict)
	}

	items, total, err := resolveItems(ctx, s.products, req.Items)
	if err != nil {
		return nil, err
	}

	intent := &entity.PaymentIntent{
		ID:            uuid.NewString(),
		Items:         items,
		TotalPrice:    total,
		OrderType:     req.OrderType,
		TableNumber:   req.TableNumber,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Status:        entity.IntentCreated,
		CreatedAt:     time.Now(),
	}
	if intent.OrderType == "" {
		intent.OrderType = entity.OrderTypeDineIn
	}

	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	paymentID := uuid.NewString()
	session, err := s.sessions.CreateSession(ctx, &gateway.SessionRequest{
		PaymentID:     paymentID,
		GrossAmount:   total,
		Items:         items,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		// No session means no way to ever pay this intent; clean it up
		// rather than leave an orphan. The client may retry as a brand
		// new checkout.
		if cancelErr := s.intents.Cancel(ctx, intent.ID); cancelErr != nil {
			slog.Error("Failed to roll back intent after session failure",
				"intent_id", intent.ID, "err", cancelErr)
		}
		return nil, err
	}

	if err := s.intents.AttachPaymentSession(ctx, intent.ID, paymentID, session.RedirectURL, session.Token); err != nil {
		return nil, err
	}
	intent.PaymentID = paymentID

	order := &entity.Order{
		ID:            uuid.NewString(),
		Items:         items,
		TotalPrice:    total,
		OrderType:     intent.OrderType,
		TableNumber:   req.TableNumber,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Status:        entity.StatusPending,
		Payment: entity.Payment{
			PaymentID: paymentID,
			Status:    entity.PaymentPending,
		},
		CreatedAt: time.Now(),
	}
	if _, err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	slog.Info("Checkout started",
		"intent_id", intent.ID, "order_id", order.ID, "payment_id", paymentID, "total", total)

	return &CheckoutResult{
		Order:       order,
		PaymentID:   paymentID,
		Token:       session.Token,
		RedirectURL: session.RedirectURL,
	}, nil
}

// CancelUnpaid reverses an abandoned attempt identified by either an order
// id or an intent id. Canceling an already-paid order is a conflict and
// mutates nothing; cancellation and the paid reconciliation are mutually
// exclusive outcomes for one payment id.
func (s *CheckoutService) CancelUnpaid(ctx context.Context, id string) error {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if order != nil {
		return s.cancelOrder(ctx, order)
	}

	intent, err := s.intents.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if intent == nil {
		return fmt.Errorf("%w: no order or intent %s", entity.ErrNotFound, id)
	}
	return s.cancelIntent(ctx, intent)
}

func (s *CheckoutService) cancelOrder(ctx context.Context, order *entity.Order) error {
	if order.Payment.Status == entity.PaymentPaid {
		return fmt.Errorf("%w: order %s is already paid", entity.ErrConflict, order.ID)
	}

	deleted, err := s.orders.DeleteUnpaid(ctx, order.ID)
	if err != nil {
		return err
	}
	if !deleted {
		// Reconciliation paid it between our read and the delete.
		return fmt.Errorf("%w: order %s is already paid", entity.ErrConflict, order.ID)
	}

	if err := s.stock.Restore(ctx, order.ID, order.Items); err != nil {
		slog.Error("Failed to restore stock for canceled order", "order_id", order.ID, "err", err)
	}

	if order.Payment.PaymentID != "" {
		intent, err := s.intents.FindByPaymentID(ctx, order.Payment.PaymentID)
		if err != nil {
			return err
		}
		if intent != nil {
			if err := s.intents.Cancel(ctx, intent.ID); err != nil {
				return err
			}
		}
	}

	s.publishCanceled(ctx, order.ID, order.Payment.PaymentID)
	slog.Info("Unpaid order canceled", "order_id", order.ID)
	return nil
}

func (s *CheckoutService) cancelIntent(ctx context.Context, intent *entity.PaymentIntent) error {
	if err := s.intents.Cancel(ctx, intent.ID); err != nil {
		return err
	}

	// Defensive cleanup: a pending order may have been created for this
	// payment in the window between lookup and cancellation.
	if intent.PaymentID != "" {
		deleted, err := s.orders.DeleteUnpaidByPaymentID(ctx, intent.PaymentID)
		if err != nil {
			return err
		}
		if deleted {
			slog.Info("Removed pending order during intent cancellation", "payment_id", intent.PaymentID)
		}
	}

	s.publishCanceled(ctx, "", intent.PaymentID)
	slog.Info("Payment intent canceled", "intent_id", intent.ID)
	return nil
}

func (s *CheckoutService) publishCanceled(ctx context.Context, orderID, paymentID string) {
	key := paymentID
	if key == "" {
		key = orderID
	}
	event := entity.OrderCanceled{OrderID: orderID, PaymentID: paymentID, CanceledAt: time.Now()}
	if err := s.publisher.PublishEvent(ctx, messaging.TopicOrdersCanceled, key, event); err != nil {
		slog.Error("Failed to publish OrderCanceled event", "payment_id", paymentID, "err", err)
	}
}

// SweepStaleIntents cancels created-state intents older than the checkout
// window, removing their pending orders with them. Stock-neutral: a pending
// order never had a decrement, so there is nothing to undo.
func (s *CheckoutService) SweepStaleIntents(ctx context.Context) error {
	stale, err := s.intents.FindStale(ctx, time.Now().Add(-s.checkoutTTL))
	if err != nil {
		return err
	}

	for _, intent := range stale {
		if intent.PaymentID != "" {
			if _, err := s.orders.DeleteUnpaidByPaymentID(ctx, intent.PaymentID); err != nil {
				slog.Error("Sweeper failed to delete pending order", "payment_id", intent.PaymentID, "err", err)
				continue
			}
		}
		if err := s.intents.Cancel(ctx, intent.ID); err != nil {
			slog.Error("Sweeper failed to cancel intent", "intent_id", intent.ID, "err", err)
			continue
		}
		slog.Info("Swept stale intent", "intent_id", intent.ID, "age", time.Since(intent.CreatedAt))
	}
	return nil
}

// RunSweeper blocks, sweeping on the given interval until the context ends.
func (s *CheckoutService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Intent sweeper shutting down")
			return
		case <-ticker.C:
			if err := s.SweepStaleIntents(ctx); err != nil {
				slog.Error("Intent sweep failed", "err", err)
			}
		}
	}
}

// resolveItems turns requested product ids into priced line items using the
// catalog as the source of truth.
func resolveItems(ctx context.Context, products repository.ProductRepository, reqItems []CheckoutItem) ([]entity.OrderItem, int64, error) {
	var (
		items []entity.OrderItem
		total int64
	)
	for _, ri := range reqItems {
		if ri.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: invalid quantity for product %s", entity.ErrConflict, ri.ProductID)
		}
		product, err := products.FindByID(ctx, ri.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if product == nil {
			return nil, 0, fmt.Errorf("%w: product %s", entity.ErrNotFound, ri.ProductID)
		}
		items = append(items, entity.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  ri.Quantity,
			Note:      ri.Note,
		})
		total += product.Price * int64(ri.Quantity)
	}
	return items, total, nil
}
