package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 bearer tokens carrying a subject id and
// a role. Sessions are issued elsewhere; this only trusts the shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed token for the user valid for ttl.
func (t *Tokens) Issue(ac AuthContext, ttl time.Duration) (string, error) {
	if !ValidRole(ac.Role) {
		return "", fmt.Errorf("issue token: unknown role %q", ac.Role)
	}
	now := t.now()
	c := claims{
		Role: ac.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(ac.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the caller it identifies.
func (t *Tokens) Verify(tokenString string) (AuthContext, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return AuthContext{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	if !ValidRole(c.Role) {
		return AuthContext{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return AuthContext{UserID: id, Role: c.Role}, nil
}
