package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

var (
	// ErrUnknownKey is returned when no active key matches.
	ErrUnknownKey = errors.New("api key not found")
	// ErrUnauthorized is the only error Authenticate reports to callers.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of a raw key under pepper. This is
// the form stored in the api_keys table.
func HashKey(pepper []byte, raw string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves raw API keys to the user they are bound to.
type Authenticator struct {
	apikeys Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate looks the key up by its hash and compares the stored hash in
// constant time.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*APIKeyInfo, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}

	hash := HashKey(a.pepper, raw)
	info, err := a.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 || info.UserID == "" {
		return nil, ErrUnauthorized
	}
	return info, nil
}

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id, or "" if there is none.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
