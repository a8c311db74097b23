package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository backed by Postgres.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *entity.Order) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ON CONFLICT on the payment_id unique index: if a concurrent
	// reconciliation already created the order for this payment, we lose
	// the race cleanly instead of crashing on a duplicate key.
	var inserted bool
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, total_price, order_type, table_number, customer_name, customer_phone, status, payment_id, payment_status, payment_method, paid_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (payment_id) DO NOTHING
		 RETURNING true`,
		order.ID, order.TotalPrice, order.OrderType, order.TableNumber,
		order.CustomerName, order.CustomerPhone, order.Status,
		nullable(order.Payment.PaymentID), order.Payment.Status,
		order.Payment.Method, order.Payment.PaidAt, order.CreatedAt,
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, name, price, quantity, note) VALUES ($1, $2, $3, $4, $5, $6)",
			order.ID, item.ProductID, item.Name, item.Price, item.Quantity, item.Note,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *orderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*entity.Order, error) {
	return r.findOne(ctx, "payment_id = $1", paymentID)
}

const orderColumns = "id, total_price, order_type, table_number, customer_name, customer_phone, status, payment_id, payment_status, payment_method, paid_at, created_at"

func (r *orderRepository) findOne(ctx context.Context, where string, arg any) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE "+where, arg)

	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	var (
		order     entity.Order
		paymentID sql.NullString
		paidAt    sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.TotalPrice, &order.OrderType, &order.TableNumber,
		&order.CustomerName, &order.CustomerPhone, &order.Status, &paymentID,
		&order.Payment.Status, &order.Payment.Method, &paidAt, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Payment.PaymentID = paymentID.String
	if paidAt.Valid {
		t := paidAt.Time
		order.Payment.PaidAt = &t
	}
	return &order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *entity.Order) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT product_id, name, price, quantity, note FROM order_items WHERE order_id = $1 ORDER BY id",
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Note); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (r *orderRepository) FindRecent(ctx context.Context, limit int) ([]entity.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) ClaimPayment(ctx context.Context, paymentID, method string, paidAt time.Time) (bool, error) {
	// The conditional UPDATE is the idempotency gate for reconciliation:
	// exactly one caller moves pending -> paid, everyone else sees zero
	// affected rows.
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, payment_method = $3, paid_at = $4
		 WHERE payment_id = $1 AND payment_status = $5`,
		paymentID, entity.PaymentPaid, method, paidAt, entity.PaymentPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *orderRepository) DeleteUnpaid(ctx context.Context, orderID string) (bool, error) {
	return r.deleteUnpaid(ctx, "id = $1", orderID)
}

func (r *orderRepository) DeleteUnpaidByPaymentID(ctx context.Context, paymentID string) (bool, error) {
	return r.deleteUnpaid(ctx, "payment_id = $1", paymentID)
}

func (r *orderRepository) deleteUnpaid(ctx context.Context, where string, arg any) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM orders WHERE "+where+" AND payment_status <> $2", arg, entity.PaymentPaid)
	if err != nil {
		return false, fmt.Errorf("failed to delete unpaid order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *orderRepository) SetStatus(ctx context.Context, orderID, status string) (bool, error) {
	// Delivered is terminal. The guard and the write are one statement, so
	// only a single caller can ever enter delivered.
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $2 WHERE id = $1 AND status <> $3",
		orderID, status, entity.StatusDelivered,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
