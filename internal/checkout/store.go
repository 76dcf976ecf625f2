package checkout

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/outbox"

	"github.com/google/uuid"
)

// Store is everything the order placement workflow needs from storage.
type Store interface {
	// CartLines returns the user's cart joined with current product data.
	CartLines(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	// Profile returns nil without error when the user has no profile.
	Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	// WithTx runs fn in one serializable unit of work. A failed commit is
	// reported as ErrCommitOutcomeUnknown.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	ClearCart(ctx context.Context, userID uuid.UUID) error
	// CancelPlacement deletes a placed order, restocks its lines and puts
	// them back into the cart. It is idempotent: an order that does not
	// exist is not an error.
	CancelPlacement(ctx context.Context, orderID uuid.UUID) error
}

type Tx interface {
	// LockProducts reads and locks the given products until the
	// transaction ends. Missing products are absent from the result.
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	// LockCart reads and locks the user's cart lines. A concurrent checkout
	// of the same cart waits here and then sees only what is left.
	LockCart(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	// ConsumeCart deletes the cart lines an order was built from.
	ConsumeCart(ctx context.Context, userID uuid.UUID, lineIDs []uuid.UUID) error
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderLines(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error
	DeductStock(ctx context.Context, orderID uuid.UUID, lines []models.OrderLine) error
	EnqueueEvent(ctx context.Context, ev outbox.Event) error
}
