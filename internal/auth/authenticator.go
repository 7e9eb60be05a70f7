package auth

import (
	"net/http"
	"strings"
)

// DebugUserHeader carries the caller's user ID in dev mode.
const DebugUserHeader = "X-Debug-User"

// Authenticator resolves the calling user from request headers. Both Connect
// interceptors and plain HTTP middleware authenticate through it, so the
// scheme can change without touching the service layer.
type Authenticator interface {
	Authenticate(header http.Header) (userID string, err error)
}

// BearerAuthenticator accepts "Authorization: Bearer <jwt>" headers.
type BearerAuthenticator struct {
	jwt *JWTManager
}

func NewBearerAuthenticator(m *JWTManager) *BearerAuthenticator {
	return &BearerAuthenticator{jwt: m}
}

func (a *BearerAuthenticator) Authenticate(header http.Header) (string, error) {
	authHeader := header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidToken
	}

	claims, err := a.jwt.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// DevAuthenticator trusts the X-Debug-User header. Local development only.
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(header http.Header) (string, error) {
	userID := strings.TrimSpace(header.Get(DebugUserHeader))
	if userID == "" {
		return "", ErrMissingToken
	}
	return userID, nil
}
