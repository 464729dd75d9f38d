package http

import "context"

type contextKey string

const ownerContextKey contextKey = "owner_id"

// ContextWithOwner returns a derived context carrying the authenticated owner id.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}

// OwnerFromContext extracts the authenticated owner id if available.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerContextKey).(string)
	return owner, ok && owner != ""
}
