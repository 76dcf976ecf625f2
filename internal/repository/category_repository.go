package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type categoryRepo struct {
	db DB
}

func NewCategoryRepository(db DB) CategoryRepository {
	return &categoryRepo{db: db}
}

func (r *categoryRepo) Create(ctx context.Context, c *models.Category) error {
	if err := validateStruct(c); err != nil {
		return err
	}

	sql := `
		INSERT INTO categories (name, description, image_url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, sql, c.Name, c.Description, c.ImageURL).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: category name already exists", ErrDuplicate)
		}
		return fmt.Errorf("create category: %w", err)
	}

	return nil
}

func (r *categoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}

	sql := `
		SELECT id, name, description, image_url, created_at
		FROM categories WHERE id = $1
	`

	var c models.Category
	err := r.db.QueryRow(ctx, sql, id).Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category with id %s: %w", id, err)
	}

	return &c, nil
}

func (r *categoryRepo) List(ctx context.Context) ([]models.Category, error) {
	sql := `
		SELECT id, name, description, image_url, created_at
		FROM categories
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to get all categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan categories: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return categories, nil
}

func (r *categoryRepo) Update(ctx context.Context, c *models.Category) error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}
	if err := validateStruct(c); err != nil {
		return err
	}

	sql := `
		UPDATE categories
		SET name = $1, description = $2, image_url = $3
		WHERE id = $4
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, sql, c.Name, c.Description, c.ImageURL, c.ID).Scan(&c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: category name already exists", ErrDuplicate)
		}
		return fmt.Errorf("failed to update category %s: %w", c.ID, err)
	}

	return nil
}

func (r *categoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}

	result, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
