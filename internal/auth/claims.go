package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the permission level granted by a token.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleOperator
}

var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrForbidden    = errors.New("auth: insufficient permissions")
	ErrInvalidRole  = errors.New("auth: invalid role")
	ErrNoSecret     = errors.New("auth: signing secret is not configured")
)

// defaultTTLMinutes applies when no TTL is given.
const defaultTTLMinutes = 60

// Claims extends the registered JWT claims with the holder's role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Allows reports whether the claims permit an action needing role want.
func (c *Claims) Allows(want Role) bool {
	if want == RoleViewer {
		return c.Role.Valid()
	}
	return c.Role == want
}

// GenerateToken creates a signed token for subject.
func GenerateToken(subject string, role Role, secret string, ttlMinutes int) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}
	return claims, nil
}
