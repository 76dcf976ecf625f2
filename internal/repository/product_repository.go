package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type productRepo struct {
	db DB
}

func NewProductRepository(db DB) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = `
	id,
	name,
	description,
	price,
	discount_price,
	stock,
	category_id,
	is_active,
	images,
	created_at,
	updated_at`

func scanProduct(row scanner, p *models.Product) error {
	return row.Scan(
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
}

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	sql := `
		INSERT INTO products (
			name,
			description,
			price,
			discount_price,
			stock,
			category_id,
			is_active,
			images
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, sql,
		p.Name,
		p.Description,
		p.Price,
		p.DiscountPrice,
		p.Stock,
		p.CategoryID,
		p.IsActive,
		p.Images,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("%w: category does not exist", ErrInvalidInput)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}

	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	var product models.Product
	if err := scanProduct(r.db.QueryRow(ctx, sql, id), &product); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product by id %s: %w", id, err)
	}

	return &product, nil
}

func (r *productRepo) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}

	sql := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY " + filter.OrderBy()
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan products: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return products, nil
}

func (r *productRepo) Update(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	sql := `
		UPDATE products
		SET
			name = $1,
			description = $2,
			price = $3,
			discount_price = $4,
			stock = $5,
			category_id = $6,
			is_active = $7,
			images = $8,
			updated_at = NOW()
		WHERE id = $9
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, sql,
		p.Name,
		p.Description,
		p.Price,
		p.DiscountPrice,
		p.Stock,
		p.CategoryID,
		p.IsActive,
		p.Images,
		p.ID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("%w: category does not exist", ErrInvalidInput)
		}
		return fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}

	return nil
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}

	result, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("%w: product appears in orders, deactivate it instead", ErrInUse)
		}
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AdjustStock applies an admin stock correction and records it in the
// movement ledger. It returns the new stock level.
func (r *productRepo) AdjustStock(ctx context.Context, id uuid.UUID, change int) (int, error) {
	if id == uuid.Nil {
		return 0, fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}
	if change == 0 {
		return 0, fmt.Errorf("%w: the stock change cannot be 0", ErrInvalidInput)
	}

	var newStock int
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock product %s: %w", id, err)
		}

		newStock = current + change
		if newStock < 0 {
			return fmt.Errorf("%w: current %d, requested change %d", ErrNotEnough, current, change)
		}

		_, err = tx.Exec(ctx, `UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2`, newStock, id)
		if err != nil {
			return fmt.Errorf("failed to update product stock %s: %w", id, err)
		}

		return InsertMovement(ctx, tx, &models.StockMovement{
			ProductID: id,
			Kind:      models.MovementAdjustment,
			Change:    change,
		})
	})
	if err != nil {
		return 0, err
	}

	return newStock, nil
}
