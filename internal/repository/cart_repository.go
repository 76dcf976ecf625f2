package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type cartRepo struct {
	db DB
}

func NewCartRepository(db DB) CartRepository {
	return &cartRepo{db: db}
}

// ListByUser returns the user's cart lines joined with the current product
// row, oldest first. An empty cart is an empty slice.
func (r *cartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}

	sql := `SELECT
		c.id,
		c.user_id,
		c.product_id,
		c.quantity,
		c.created_at,
		p.id,
		p.name,
		p.description,
		p.price,
		p.discount_price,
		p.stock,
		p.category_id,
		p.is_active,
		p.images,
		p.created_at,
		p.updated_at
		FROM cart c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id
	`

	rows, err := r.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart for user %s: %w", userID, err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var (
			line models.CartLine
			p    models.Product
		)
		err := rows.Scan(
			&line.ID,
			&line.UserID,
			&line.ProductID,
			&line.Quantity,
			&line.CreatedAt,
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.DiscountPrice,
			&p.Stock,
			&p.CategoryID,
			&p.IsActive,
			&p.Images,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		line.Product = &p
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return lines, nil
}

// Add puts quantity units of a product into the cart, merging with an
// existing line. The merged quantity may not exceed the current stock.
func (r *cartRepo) Add(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartLine, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, fmt.Errorf("%w: user and product are required", ErrInvalidInput)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	var line models.CartLine
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		stock, err := availableStock(ctx, tx, productID)
		if err != nil {
			return err
		}

		var existing int
		err = tx.QueryRow(ctx,
			`SELECT quantity FROM cart WHERE user_id = $1 AND product_id = $2 FOR UPDATE`,
			userID, productID,
		).Scan(&existing)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read cart line: %w", err)
		}

		if existing+quantity > stock {
			return fmt.Errorf("%w: requested %d, available %d", ErrNotEnough, existing+quantity, stock)
		}

		sql := `
			INSERT INTO cart (user_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity
			RETURNING id, user_id, product_id, quantity, created_at
		`
		err = tx.QueryRow(ctx, sql, userID, productID, quantity).Scan(
			&line.ID,
			&line.UserID,
			&line.ProductID,
			&line.Quantity,
			&line.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to add cart line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &line, nil
}

func (r *cartRepo) UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, quantity int) (*models.CartLine, error) {
	if userID == uuid.Nil || lineID == uuid.Nil {
		return nil, fmt.Errorf("%w: user and cart line are required", ErrInvalidInput)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	var line models.CartLine
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var productID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT product_id FROM cart WHERE id = $1 AND user_id = $2`, lineID, userID).Scan(&productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read cart line %s: %w", lineID, err)
		}

		// Product before cart line, the same lock order as Add and checkout.
		stock, err := availableStock(ctx, tx, productID)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`SELECT id, user_id, product_id, quantity, created_at FROM cart WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			lineID, userID,
		).Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock cart line %s: %w", lineID, err)
		}

		if quantity > stock {
			return fmt.Errorf("%w: requested %d, available %d", ErrNotEnough, quantity, stock)
		}

		if _, err := tx.Exec(ctx, `UPDATE cart SET quantity = $1 WHERE id = $2`, quantity, lineID); err != nil {
			return fmt.Errorf("failed to update cart line %s: %w", lineID, err)
		}
		line.Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &line, nil
}

func (r *cartRepo) Remove(ctx context.Context, userID, lineID uuid.UUID) error {
	if userID == uuid.Nil || lineID == uuid.Nil {
		return fmt.Errorf("%w: user and cart line are required", ErrInvalidInput)
	}

	result, err := r.db.Exec(ctx, `DELETE FROM cart WHERE id = $1 AND user_id = $2`, lineID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove cart line %s: %w", lineID, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *cartRepo) ClearByUser(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM cart WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart for user %s: %w", userID, err)
	}
	return nil
}

// availableStock reports how many units of an active product can be put in
// a cart. Inactive products have none. The product row stays locked until the
// transaction ends, so concurrent adds of the same product are checked one
// after the other.
func availableStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (int, error) {
	var (
		stock  int
		active bool
	)
	err := tx.QueryRow(ctx, `SELECT stock, is_active FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to read product stock: %w", err)
	}
	if !active {
		return 0, nil
	}
	return stock, nil
}
