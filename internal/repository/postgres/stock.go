package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/warungku/backend/internal/entity"
	"github.com/warungku/backend/internal/repository"
)

const (
	directionDecrement = "decrement"
	directionRestore   = "restore"
)

type stockLedger struct {
	db *sql.DB
}

// NewStockLedger creates a StockLedger backed by Postgres. A ledger row per
// (order, direction) makes each stock effect applicable at most once, so
// redelivered webhooks and repeated cancels never double-adjust counters.
func NewStockLedger(db *sql.DB) repository.StockLedger {
	return &stockLedger{db: db}
}

func (l *stockLedger) Decrement(ctx context.Context, orderID string, items []entity.OrderItem) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied, err := recordEntry(ctx, tx, orderID, directionDecrement)
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("Stock already decremented for order, skipping", "order_id", orderID)
		return nil
	}

	for _, item := range items {
		// Conditional decrement: concurrent orders cannot race the
		// counter below zero.
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
			item.Quantity, item.ProductID,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement stock for %s: %w", item.ProductID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			// Payment has already been captured externally, so this is
			// an inventory inconsistency to alert on, not an abort.
			slog.Error("Insufficient stock during paid reconciliation",
				"order_id", orderID, "product_id", item.ProductID, "quantity", item.Quantity)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *stockLedger) Restore(ctx context.Context, orderID string, items []entity.OrderItem) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied, err := recordEntry(ctx, tx, orderID, directionRestore)
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("Stock already restored for order, skipping", "order_id", orderID)
		return nil
	}

	// Only undo a decrement that actually happened. An unpaid order whose
	// payment was never captured took no stock, so restoring it must not
	// inflate counters.
	var decremented bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM stock_entries WHERE order_id = $1 AND direction = $2)",
		orderID, directionDecrement,
	).Scan(&decremented)
	if err != nil {
		return fmt.Errorf("failed to check stock ledger: %w", err)
	}

	if decremented {
		for _, item := range items {
			_, err := tx.ExecContext(ctx,
				"UPDATE products SET stock = stock + $1 WHERE id = $2",
				item.Quantity, item.ProductID,
			)
			if err != nil {
				return fmt.Errorf("failed to restore stock for %s: %w", item.ProductID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// recordEntry claims a ledger slot. False means the effect was applied
// before.
func recordEntry(ctx context.Context, tx *sql.Tx, orderID, direction string) (bool, error) {
	var inserted bool
	err := tx.QueryRowContext(ctx,
		"INSERT INTO stock_entries (order_id, direction) VALUES ($1, $2) ON CONFLICT (order_id, direction) DO NOTHING RETURNING true",
		orderID, direction,
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record stock entry: %w", err)
	}
	return true, nil
}
