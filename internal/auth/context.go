package auth

import (
	"context"

	"github.com/voltsight/twin-gateway/internal/models"
)

type identityKey struct{}

// WithIdentity returns a context carrying the verified caller.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller stored by WithIdentity.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(models.Identity)
	return identity, ok
}
