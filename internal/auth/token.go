package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rotasales/rotasales/internal/shared"
)

// NewSellerToken generates the opaque bearer token handed to a seller
// device. 32 random bytes, URL-safe encoded.
func NewSellerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate seller token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenIssuer signs and verifies the short-lived access tokens used on the
// HTTP API.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs an access token for the identity.
func (t *TokenIssuer) Issue(ident shared.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:   string(ident.Role),
		BossID: ident.BossID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(ident.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses an access token back into an identity.
func (t *TokenIssuer) Verify(tokenString string) (shared.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return shared.Identity{}, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return shared.Identity{}, fmt.Errorf("%w: malformed subject", shared.ErrInvalidCredentials)
	}
	role := shared.Role(claims.Role)
	if role != shared.RoleBoss && role != shared.RoleSeller {
		return shared.Identity{}, fmt.Errorf("%w: unknown role %q", shared.ErrInvalidCredentials, claims.Role)
	}
	return shared.Identity{ID: id, Role: role, BossID: claims.BossID}, nil
}
