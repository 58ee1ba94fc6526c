// Package identity carries the authenticated provider through request contexts.
package identity

import "context"

type ctxKey string

const providerKey ctxKey = "proconnect.provider_id"

// WithProviderID stores the provider id in context.
func WithProviderID(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, providerKey, providerID)
}

// ProviderIDFromContext extracts the provider id if present.
func ProviderIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(providerKey)
	if val == nil {
		return "", false
	}
	providerID, ok := val.(string)
	return providerID, ok && providerID != ""
}
