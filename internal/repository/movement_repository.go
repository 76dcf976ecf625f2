package repository

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/google/uuid"
)

type movementRepo struct {
	db DB
}

func NewStockMovementRepository(db DB) StockMovementRepository {
	return &movementRepo{db: db}
}

var validMovementKinds = map[models.StockMovementKind]bool{
	models.MovementOutgoing:   true,
	models.MovementIncoming:   true,
	models.MovementAdjustment: true,
}

// InsertMovement records one stock change. It is called inside the
// transaction that changes products.stock so the ledger never drifts.
func InsertMovement(ctx context.Context, q Querier, m *models.StockMovement) error {
	if m == nil {
		return fmt.Errorf("%w: movement cannot be nil", ErrInvalidInput)
	}
	if m.ProductID == uuid.Nil {
		return fmt.Errorf("%w: product ID cannot be empty", ErrInvalidInput)
	}
	if m.Change == 0 {
		return fmt.Errorf("%w: the change cannot be 0", ErrInvalidInput)
	}
	if !validMovementKinds[m.Kind] {
		return fmt.Errorf("%w: invalid movement kind '%s'", ErrInvalidInput, m.Kind)
	}

	sql := `INSERT INTO stock_movements (
		product_id,
		order_id,
		kind,
		change
		) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, sql, m.ProductID, m.OrderID, m.Kind, m.Change).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}

func (r *movementRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("%w: product ID cannot be empty", ErrInvalidInput)
	}
	return r.list(ctx, "product_id", productID)
}

func (r *movementRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("%w: order ID cannot be empty", ErrInvalidInput)
	}
	return r.list(ctx, "order_id", orderID)
}

func (r *movementRepo) list(ctx context.Context, column string, id uuid.UUID) ([]models.StockMovement, error) {
	sql := `SELECT
		id,
		product_id,
		order_id,
		kind,
		change,
		created_at
		FROM stock_movements
		WHERE ` + column + ` = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock movements by %s %s: %w", column, id, err)
	}
	defer rows.Close()

	movements := []models.StockMovement{}
	for rows.Next() {
		var m models.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.OrderID, &m.Kind, &m.Change, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movements: %w", err)
		}
		movements = append(movements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete rows iteration: %w", err)
	}

	return movements, nil
}
