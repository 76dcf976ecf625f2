package repository

import (
	"context"

	"storefront/internal/models"

	"github.com/google/uuid"
)

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error

	AdjustStock(ctx context.Context, id uuid.UUID, change int) (int, error)
}

type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	List(ctx context.Context) ([]models.Category, error)
	Update(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	List(ctx context.Context) ([]models.Profile, error)
	UpdateShipping(ctx context.Context, id uuid.UUID, update models.ShippingUpdate) (*models.Profile, error)
}

type CartRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	Add(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartLine, error)
	UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, quantity int) (*models.CartLine, error)
	Remove(ctx context.Context, userID, lineID uuid.UUID) error
	ClearByUser(ctx context.Context, userID uuid.UUID) error
}

type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next models.OrderStatus) (*models.Order, error)
}

type StockMovementRepository interface {
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error)
}

type DashboardRepository interface {
	Stats(ctx context.Context) (*models.DashboardStats, error)
}
