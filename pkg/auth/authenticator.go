package auth

import (
	"context"
	"errors"
)

var (
	// ErrNoCredentials is returned when the context carries no token.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials is returned when a token is not accepted.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticator resolves the token found in ctx to a user.
type Authenticator interface {
	Authenticate(ctx context.Context) (*UserContext, error)
}

// ChainedAuthenticator tries multiple authenticators in order.
type ChainedAuthenticator struct {
	authenticators []Authenticator
	allowAnonymous bool
}

// ChainedAuthConfig configures the chained authenticator.
type ChainedAuthConfig struct {
	AllowAnonymous bool
}

// NewChainedAuthenticator creates a new chained authenticator.
func NewChainedAuthenticator(cfg ChainedAuthConfig, authenticators ...Authenticator) *ChainedAuthenticator {
	return &ChainedAuthenticator{
		authenticators: authenticators,
		allowAnonymous: cfg.AllowAnonymous,
	}
}

// Authenticate tries each authenticator in order and returns the first
// user accepted.
func (c *ChainedAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	var lastErr error

	for _, a := range c.authenticators {
		uc, err := a.Authenticate(ctx)
		if err == nil && uc != nil {
			return uc, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if c.allowAnonymous {
		return &UserContext{UserID: AnonymousUserID, AuthType: "anonymous"}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoCredentials
}

// Verify interface compliance.
var _ Authenticator = (*ChainedAuthenticator)(nil)
