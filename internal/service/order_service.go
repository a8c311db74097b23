package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/messaging"
	"github.com/warungku/backend/internal/repository"
)

// OrderService drives the post-payment kitchen workflow and the cashier
// path, and serves the staff read APIs.
type OrderService struct {
	orders    repository.OrderRepository
	products  repository.ProductRepository
	stock     repository.StockLedger
	publisher messaging.Publisher
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	stock repository.StockLedger,
	publisher messaging.Publisher,
) *OrderService {
	return &OrderService{
		orders:    orders,
		products:  products,
		stock:     stock,
		publisher: publisher,
	}
}

// SetStatus moves an order through pending -> confirmed -> delivered.
// Delivered is terminal; entering it bumps each product's sales counter
// exactly once, because the terminal guard and the status write are a single
// atomic claim that only one caller can win.
func (s *OrderService) SetStatus(ctx context.Context, orderID, target string) (*entity.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", entity.ErrNotFound, orderID)
	}

	if err := entity.ValidateTransition(order.Status, target); err != nil {
		return nil, err
	}

	changed, err := s.orders.SetStatus(ctx, orderID, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent caller delivered the order between our read and
		// this write.
		return nil, fmt.Errorf("%w: order %s is already delivered", entity.ErrConflict, orderID)
	}
	order.Status = target

	if target == entity.StatusDelivered {
		if err := s.products.IncrementSold(ctx, order.Items); err != nil {
			slog.Error("Failed to increment sales counters", "order_id", orderID, "err", err)
		}

		event := entity.OrderDelivered{OrderID: orderID, DeliveredAt: time.Now()}
		if err := s.publisher.PublishEvent(ctx, messaging.TopicOrdersDelivered, orderID, event); err != nil {
			slog.Error("Failed to publish OrderDelivered event", "order_id", orderID, "err", err)
		}
	}

	slog.Info("Order status updated", "order_id", orderID, "status", target)
	return order, nil
}

// StaffOrderRequest is the cashier flow: the order is paid at the counter,
// so it never touches a payment intent or the gateway.
type StaffOrderRequest struct {
	Items         []CheckoutItem `json:"items"`
	OrderType     string         `json:"order_type"`
	TableNumber   string         `json:"table_number,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
}

func (s *OrderService) CreateStaffOrder(ctx context.Context, req *StaffOrderRequest) (*entity.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one item", entity.ErrConflict)
	}

	items, total, err := resolveItems(ctx, s.products, req.Items)
	if err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = "cash"
	}
	now := time.Now()

	order := &entity.Order{
		ID:            uuid.NewString(),
		Items:         items,
		TotalPrice:    total,
		OrderType:     req.OrderType,
		TableNumber:   req.TableNumber,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Status:        entity.StatusPending,
		Payment: entity.Payment{
			Status: entity.PaymentPaid,
			Method: method,
			PaidAt: &now,
		},
		CreatedAt: now,
	}
	if order.OrderType == "" {
		order.OrderType = entity.OrderTypeDineIn
	}

	if _, err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.stock.Decrement(ctx, order.ID, order.Items); err != nil {
		slog.Error("Stock decrement failed for staff order", "order_id", order.ID, "err", err)
	}

	event := entity.OrderPaid{
		OrderID:    order.ID,
		Items:      order.Items,
		TotalPrice: order.TotalPrice,
		Method:     method,
		PaidAt:     now,
	}
	if err := s.publisher.PublishEvent(ctx, messaging.TopicOrdersPaid, order.ID, event); err != nil {
		slog.Error("Failed to publish OrderPaid event", "order_id", order.ID, "err", err)
	}

	slog.Info("Staff order created", "order_id", order.ID, "total", total)
	return order, nil
}

// GetProducts returns the menu.
func (s *OrderService) GetProducts(ctx context.Context) ([]entity.Product, error) {
	return s.products.FindAll(ctx)
}

// GetRecentOrders returns the latest orders for the staff dashboard.
func (s *OrderService) GetRecentOrders(ctx context.Context, limit int) ([]entity.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.orders.FindRecent(ctx, limit)
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", entity.ErrNotFound, id)
	}
	return order, nil
}
