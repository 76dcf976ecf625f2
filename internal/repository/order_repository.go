package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type orderRepo struct {
	db    DB
	topic string
}

// NewOrderRepository returns an order repository that writes status change
// events to the outbox under topic.
func NewOrderRepository(db DB, topic string) OrderRepository {
	return &orderRepo{db: db, topic: topic}
}

const orderColumns = `
	o.id,
	o.user_id,
	COALESCE(p.full_name, ''),
	o.total_amount,
	o.shipping_address,
	o.payment_method,
	o.status,
	o.created_at,
	o.updated_at`

func scanOrder(row scanner, o *models.Order) error {
	return row.Scan(
		&o.ID,
		&o.UserID,
		&o.CustomerName,
		&o.TotalAmount,
		&o.ShippingAddress,
		&o.PaymentMethod,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: order ID cannot be empty", ErrInvalidInput)
	}
	return getOrder(ctx, r.db, id)
}

func getOrder(ctx context.Context, q Querier, id uuid.UUID) (*models.Order, error) {
	sql := `SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN profiles p ON p.id = o.user_id
		WHERE o.id = $1`

	var order models.Order
	if err := scanOrder(q.QueryRow(ctx, sql, id), &order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	orders := []models.Order{order}
	if err := attachLines(ctx, q, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}

	sql := `SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN profiles p ON p.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC`

	return r.list(ctx, sql, userID)
}

func (r *orderRepo) ListAll(ctx context.Context) ([]models.Order, error) {
	sql := `SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN profiles p ON p.id = o.user_id
		ORDER BY o.created_at DESC`

	return r.list(ctx, sql)
}

func (r *orderRepo) list(ctx context.Context, sql string, args ...any) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("failed to scan orders: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}
	rows.Close()

	if err := attachLines(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines loads the lines of every order in one query and assigns them
// in place.
func attachLines(ctx context.Context, q Querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		index[orders[i].ID] = i
		orders[i].Lines = []models.OrderLine{}
	}

	sql := `SELECT
		id,
		order_id,
		product_id,
		product_name,
		quantity,
		price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[l.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}

// UpdateStatus moves an order to next when the transition graph allows it.
// Cancelling an order puts its quantities back into stock.
func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: order ID cannot be empty", ErrInvalidInput)
	}
	if _, err := models.ParseOrderStatus(string(next)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			current models.OrderStatus
			userID  uuid.UUID
		)
		err := tx.QueryRow(ctx, `SELECT status, user_id FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current, &userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock order %s: %w", id, err)
		}

		if !current.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		}
		if current == next {
			return nil
		}

		if next == models.OrderStatusCancelled {
			if err := RestockOrder(ctx, tx, id); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, next, id)
		if err != nil {
			return fmt.Errorf("update status order %s: %w", id, err)
		}

		ev := outbox.NewEvent(outbox.EventOrderStatusChanged, id, userID, map[string]any{
			"from": current,
			"to":   next,
		})
		return outbox.Insert(ctx, tx, r.topic, ev)
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// RestockedProducts lists the products whose stock a cancellation of the
// order changes. Callers use it to invalidate caches.
func RestockedProducts(order *models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(order.Lines))
	for _, l := range order.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// RestockOrder returns every line's quantity to the product stock and records
// an incoming movement per line. It must run inside the caller's transaction.
func RestockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return fmt.Errorf("failed to read order items %s: %w", orderID, err)
	}

	type restock struct {
		productID uuid.UUID
		quantity  int
	}
	var lines []restock
	for rows.Next() {
		var l restock
		if err := rows.Scan(&l.productID, &l.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}

	for _, l := range lines {
		_, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2`, l.quantity, l.productID)
		if err != nil {
			return fmt.Errorf("failed to restock product %s: %w", l.productID, err)
		}

		oid := orderID
		err = InsertMovement(ctx, tx, &models.StockMovement{
			ProductID: l.productID,
			OrderID:   &oid,
			Kind:      models.MovementIncoming,
			Change:    l.quantity,
		})
		if err != nil {
			return err
		}
	}

	return nil
}
