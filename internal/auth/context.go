package auth

import (
	"context"

	"storefront/internal/models"
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the caller identity, if the request carried one.
func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	if !ok || id.IsZero() {
		return models.Identity{}, false
	}
	return id, true
}
