package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyConfig holds API key configuration.
type APIKeyConfig struct {
	Keys []APIKey
}

// APIKey represents an API key entry. Exactly one of Key or KeyHash is set;
// KeyHash is a bcrypt hash of the key.
type APIKey struct {
	Key     string
	KeyHash string
	Name    string
	Roles   []string
}

// APIKeyAuthenticator authenticates using API keys.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(cfg APIKeyConfig) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: append([]APIKey(nil), cfg.Keys...)}
}

// Authenticate validates the API key and returns the user it belongs to.
// The user ID is "apikey:<name>".
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, ErrNoCredentials
	}

	for i := range a.keys {
		k := &a.keys[i]
		if !k.matches(token) {
			continue
		}
		return &UserContext{
			UserID:   "apikey:" + k.Name,
			Name:     k.Name,
			Roles:    k.Roles,
			AuthType: "apikey",
		}, nil
	}
	return nil, fmt.Errorf("api key: %w", ErrInvalidCredentials)
}

func (k *APIKey) matches(token string) bool {
	if k.KeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(token)) == nil
	}
	return k.Key != "" && subtle.ConstantTimeCompare([]byte(k.Key), []byte(token)) == 1
}

// HashKey returns the bcrypt hash to store in configuration for key.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(h), nil
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
