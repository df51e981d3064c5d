// Package auth authenticates callers of the query builder and carries their
// identity through request contexts.
package auth

import "context"

// contextKey is a private type for context keys.
type contextKey int

const (
	userContextKey contextKey = iota
	tokenContextKey
)

// AnonymousUserID is the identity given to callers when anonymous access is
// enabled.
const AnonymousUserID = "anonymous"

// UserContext holds authenticated user information. UserID scopes every
// stored connection, saved query and audit record.
type UserContext struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	AuthType string   `json:"auth_type"` // "apikey", "jwt", "anonymous"
}

// WithUserContext adds user context to the context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// GetUserContext retrieves user context from the context.
func GetUserContext(ctx context.Context) *UserContext {
	if uc, ok := ctx.Value(userContextKey).(*UserContext); ok {
		return uc
	}
	return nil
}

// UserID returns the authenticated user's ID, or "" when ctx carries none.
func UserID(ctx context.Context) string {
	if uc := GetUserContext(ctx); uc != nil {
		return uc.UserID
	}
	return ""
}

// WithToken adds a raw credential (bearer token or API key) to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves the raw credential from the context.
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(tokenContextKey).(string); ok {
		return token
	}
	return ""
}
