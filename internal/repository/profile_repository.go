package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type profileRepo struct {
	db DB
}

func NewProfileRepository(db DB) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `
	id,
	email,
	full_name,
	phone,
	address,
	pincode,
	role,
	created_at`

func scanProfile(row scanner, p *models.Profile) error {
	return row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.Phone,
		&p.Address,
		&p.Pincode,
		&p.Role,
		&p.CreatedAt,
	)
}

// Create seeds a profile for a freshly signed-up identity. Signing up twice
// with the same identity keeps the first profile.
func (r *profileRepo) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}
	if p.Role == "" {
		p.Role = models.RoleCustomer
	}
	if p.Role != models.RoleCustomer && p.Role != models.RoleAdmin {
		return fmt.Errorf("%w: invalid role '%s'", ErrInvalidInput, p.Role)
	}

	sql := `
		INSERT INTO profiles (id, email, full_name, phone, address, pincode, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, sql,
		p.ID,
		p.Email,
		p.FullName,
		p.Phone,
		p.Address,
		p.Pincode,
		p.Role,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: profile %s already exists", ErrDuplicate, p.ID)
		}
		return fmt.Errorf("create profile: %w", err)
	}

	return nil
}

func (r *profileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}

	sql := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	var profile models.Profile
	if err := scanProfile(r.db.QueryRow(ctx, sql, id), &profile); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile with id %s: %w", id, err)
	}

	return &profile, nil
}

func (r *profileRepo) List(ctx context.Context) ([]models.Profile, error) {
	sql := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to get all profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		var p models.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan profiles: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return profiles, nil
}

func (r *profileRepo) UpdateShipping(ctx context.Context, id uuid.UUID, u models.ShippingUpdate) (*models.Profile, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: ID cannot be empty", ErrInvalidInput)
	}
	if err := validateStruct(u); err != nil {
		return nil, err
	}

	sql := `
		UPDATE profiles
		SET full_name = $1, phone = $2, address = $3, pincode = $4
		WHERE id = $5
		RETURNING ` + profileColumns

	var profile models.Profile
	err := scanProfile(r.db.QueryRow(ctx, sql, u.FullName, u.Phone, u.Address, u.Pincode, id), &profile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update profile %s: %w", id, err)
	}

	return &profile, nil
}
