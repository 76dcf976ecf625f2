package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	Stock         int              `json:"stock"`
	CategoryID    *uuid.UUID       `json:"category_id,omitempty"`
	IsActive      bool             `json:"is_active"`
	Images        []string         `json:"images"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// EffectivePrice is the unit price a customer pays: the discount price when
// one is set, the list price otherwise.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

func (p *Product) Validate() error {
	var problems []string

	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !p.Price.IsPositive() {
		problems = append(problems, "price must be positive")
	}
	if p.DiscountPrice != nil {
		if p.DiscountPrice.IsNegative() {
			problems = append(problems, "discount_price cannot be negative")
		}
		if !p.DiscountPrice.LessThan(p.Price) {
			problems = append(problems, "discount_price must be lower than price")
		}
	}
	if p.Stock < 0 {
		problems = append(problems, "stock cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProduct, strings.Join(problems, "; "))
	}
	return nil
}

var ErrInvalidProduct = errors.New("invalid product")

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name" validate:"required,min=2,max=100"`
	Description string    `json:"description" validate:"max=1000"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProductSort string

const (
	SortNewest    ProductSort = "created_at-desc"
	SortOldest    ProductSort = "created_at-asc"
	SortPriceAsc  ProductSort = "price-asc"
	SortPriceDesc ProductSort = "price-desc"
)

type ProductFilter struct {
	CategoryID *uuid.UUID
	Sort       ProductSort
	ActiveOnly bool
	Limit      int
}

// OrderBy returns the ORDER BY clause for the filter's sort option. Unknown
// values fall back to newest first.
func (f ProductFilter) OrderBy() string {
	switch f.Sort {
	case SortOldest:
		return "created_at ASC"
	case SortPriceAsc:
		return "COALESCE(discount_price, price) ASC"
	case SortPriceDesc:
		return "COALESCE(discount_price, price) DESC"
	default:
		return "created_at DESC"
	}
}

// Key identifies the filter in caches.
func (f ProductFilter) Key() string {
	category := "all"
	if f.CategoryID != nil {
		category = f.CategoryID.String()
	}
	sort := f.Sort
	if sort == "" {
		sort = SortNewest
	}
	return fmt.Sprintf("%s:%s:%t:%d", category, sort, f.ActiveOnly, f.Limit)
}
