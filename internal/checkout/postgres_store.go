package checkout

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/outbox"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresStore is the Store backed by the storefront database.
type PostgresStore struct {
	db       repository.DB
	carts    repository.CartRepository
	profiles repository.ProfileRepository
	topic    string
}

func NewPostgresStore(db repository.DB, carts repository.CartRepository, profiles repository.ProfileRepository, topic string) *PostgresStore {
	return &PostgresStore{db: db, carts: carts, profiles: profiles, topic: topic}
}

func (s *PostgresStore) CartLines(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return s.carts.ListByUser(ctx, userID)
}

func (s *PostgresStore) Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return s.carts.ClearByUser(ctx, userID)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, topic: s.topic}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitOutcomeUnknown, err)
	}
	return nil
}

// CancelPlacement removes an order whose commit may have succeeded, gives
// its stock back and returns its lines to the user's cart.
func (s *PostgresStore) CancelPlacement(ctx context.Context, orderID uuid.UUID) error {
	return repository.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT user_id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("lock order %s: %w", orderID, err)
		}

		if err := repository.RestockOrder(ctx, tx, orderID); err != nil {
			return err
		}

		restore := `
			INSERT INTO cart (user_id, product_id, quantity)
			SELECT $1, product_id, SUM(quantity)
			FROM order_items
			WHERE order_id = $2
			GROUP BY product_id
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity
		`
		if _, err := tx.Exec(ctx, restore, userID, orderID); err != nil {
			return fmt.Errorf("restore cart for order %s: %w", orderID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
			return fmt.Errorf("delete order %s: %w", orderID, err)
		}

		ev := outbox.NewEvent(outbox.EventOrderCompensated, orderID, userID, nil)
		return outbox.Insert(ctx, tx, s.topic, ev)
	})
}

type pgTx struct {
	tx    pgx.Tx
	topic string
}

func (t *pgTx) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	sql := `SELECT id, name, price, discount_price, stock, is_active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	rows, err := t.tx.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[uuid.UUID]models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DiscountPrice, &p.Stock, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (t *pgTx) LockCart(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	sql := `SELECT id, user_id, product_id, quantity, created_at
		FROM cart
		WHERE user_id = $1
		ORDER BY created_at, id
		FOR UPDATE`

	rows, err := t.tx.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *pgTx) ConsumeCart(ctx context.Context, userID uuid.UUID, lineIDs []uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart WHERE user_id = $1 AND id = ANY($2)`, userID, lineIDs)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	sql := `
		INSERT INTO orders (id, user_id, total_amount, shipping_address, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	return t.tx.QueryRow(ctx, sql,
		o.ID,
		o.UserID,
		o.TotalAmount,
		o.ShippingAddress,
		o.PaymentMethod,
		o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (t *pgTx) InsertOrderLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			orderID, l.ProductID, l.ProductName, l.Quantity, l.Price,
		)
	}

	br := t.tx.SendBatch(ctx, batch)
	for i := range lines {
		if err := br.QueryRow().Scan(&lines[i].ID); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// DeductStock takes the ordered quantities out of stock. The conditional
// update guards the invariant even if a lock was bypassed.
func (t *pgTx) DeductStock(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error {
	for _, l := range lines {
		tag, err := t.tx.Exec(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1`,
			l.Quantity, l.ProductID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: product %s", repository.ErrNotEnough, l.ProductID)
		}

		oid := orderID
		err = repository.InsertMovement(ctx, t.tx, &models.StockMovement{
			ProductID: l.ProductID,
			OrderID:   &oid,
			Kind:      models.MovementOutgoing,
			Change:    -l.Quantity,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, ev outbox.Event) error {
	return outbox.Insert(ctx, t.tx, t.topic, ev)
}
