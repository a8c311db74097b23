package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/repository"
)

type intentRepository struct {
	db *sql.DB
}

// NewIntentRepository creates a new IntentRepository backed by Postgres.
func NewIntentRepository(db *sql.DB) repository.IntentRepository {
	return &intentRepository{db: db}
}

func (r *intentRepository) Create(ctx context.Context, intent *entity.PaymentIntent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_intents (id, total_price, order_type, table_number, customer_name, customer_phone, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		intent.ID, intent.TotalPrice, intent.OrderType, intent.TableNumber,
		intent.CustomerName, intent.CustomerPhone, entity.IntentCreated, intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment intent: %w", err)
	}

	for _, item := range intent.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO intent_items (intent_id, product_id, name, price, quantity, note) VALUES ($1, $2, $3, $4, $5, $6)",
			intent.ID, item.ProductID, item.Name, item.Price, item.Quantity, item.Note,
		)
		if err != nil {
			return fmt.Errorf("failed to insert intent item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *intentRepository) AttachPaymentSession(ctx context.Context, intentID, paymentID, redirectURL, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_intents SET payment_id = $2, redirect_url = $3, session_token = $4
		 WHERE id = $1 AND (payment_id IS NULL OR payment_id = $2)`,
		intentID, paymentID, redirectURL, token,
	)
	if err != nil {
		return fmt.Errorf("failed to attach payment session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Either the intent is gone or it already carries a different payment
	// id. The payment id is immutable once assigned.
	var existing sql.NullString
	err = r.db.QueryRowContext(ctx, "SELECT payment_id FROM payment_intents WHERE id = $1", intentID).Scan(&existing)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: payment intent %s", entity.ErrNotFound, intentID)
	}
	if err != nil {
		return fmt.Errorf("failed to check payment intent: %w", err)
	}
	return fmt.Errorf("%w: intent %s already has payment id %s", entity.ErrConflict, intentID, existing.String)
}

func (r *intentRepository) FindByID(ctx context.Context, id string) (*entity.PaymentIntent, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *intentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*entity.PaymentIntent, error) {
	return r.findOne(ctx, "payment_id = $1", paymentID)
}

func (r *intentRepository) findOne(ctx context.Context, where string, arg any) (*entity.PaymentIntent, error) {
	var (
		intent    entity.PaymentIntent
		paymentID sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, total_price, order_type, table_number, customer_name, customer_phone, status, payment_id, redirect_url, session_token, created_at
		 FROM payment_intents WHERE `+where,
		arg,
	).Scan(
		&intent.ID, &intent.TotalPrice, &intent.OrderType, &intent.TableNumber,
		&intent.CustomerName, &intent.CustomerPhone, &intent.Status, &paymentID,
		&intent.RedirectURL, &intent.SessionToken, &intent.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment intent: %w", err)
	}
	intent.PaymentID = paymentID.String

	rows, err := r.db.QueryContext(ctx,
		"SELECT product_id, name, price, quantity, note FROM intent_items WHERE intent_id = $1 ORDER BY id",
		intent.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query intent items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Note); err != nil {
			return nil, fmt.Errorf("failed to scan intent item: %w", err)
		}
		intent.Items = append(intent.Items, item)
	}
	return &intent, rows.Err()
}

func (r *intentRepository) Settle(ctx context.Context, intentID string) error {
	return r.finish(ctx, intentID, entity.IntentSettled)
}

func (r *intentRepository) Cancel(ctx context.Context, intentID string) error {
	return r.finish(ctx, intentID, entity.IntentCanceled)
}

// finish marks the intent terminal and deletes it. Terminal statuses are
// one-way: the guarded UPDATE only fires from the created state, and once
// the row is gone a second call finds nothing to do.
func (r *intentRepository) finish(ctx context.Context, intentID, status string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE payment_intents SET status = $2 WHERE id = $1 AND status = $3",
		intentID, status, entity.IntentCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to mark intent %s: %w", status, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM payment_intents WHERE id = $1", intentID)
	if err != nil {
		return fmt.Errorf("failed to delete intent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *intentRepository) FindStale(ctx context.Context, olderThan time.Time) ([]entity.PaymentIntent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, payment_id, created_at FROM payment_intents WHERE status = $1 AND created_at < $2",
		entity.IntentCreated, olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale intents: %w", err)
	}
	defer rows.Close()

	var intents []entity.PaymentIntent
	for rows.Next() {
		var (
			intent    entity.PaymentIntent
			paymentID sql.NullString
		)
		if err := rows.Scan(&intent.ID, &paymentID, &intent.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stale intent: %w", err)
		}
		intent.PaymentID = paymentID.String
		intent.Status = entity.IntentCreated
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}
