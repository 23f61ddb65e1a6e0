// Package auth verifies the scoped JWTs that accompany every tool call.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes granted to callers.
const (
	ScopeRead     = "read"
	ScopeTransact = "transact"
)

// DefaultIssuer is the issuer the orchestrator stamps on its tokens.
const DefaultIssuer = "orchestrator"

var (
	ErrMissingToken      = errors.New("missing token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInsufficientScope = errors.New("insufficient scope")
)

// Claims is the token payload. The user ID travels in sub.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Scopes []string
}

// HasScope reports whether the principal was granted scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// Verifier checks and mints HS256 tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty issuer selects DefaultIssuer.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Verify validates signature, expiry, issuer and subject, and requires scope
// when it is non-empty.
func (v *Verifier) Verify(tokenString, scope string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing user identifier", ErrInvalidToken)
	}

	p := Principal{UserID: claims.Subject, Scopes: claims.Scopes}
	if scope != "" && !p.HasScope(scope) {
		return Principal{}, fmt.Errorf("%w: %q required", ErrInsufficientScope, scope)
	}
	return p, nil
}

// Issue mints a token for userID valid for ttl.
func (v *Verifier) Issue(userID string, scopes []string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := v.now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ExtractToken pulls the token out of an Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func ExtractToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(header)
	switch {
	case len(parts) == 2 && strings.EqualFold(parts[0], "bearer"):
		return parts[1], nil
	case len(parts) == 1:
		return parts[0], nil
	}
	return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
}
