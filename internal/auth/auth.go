// Package auth is the caller identity gate. It turns a bearer token
// into a verified Identity once per request; the role used for
// privileged operations is always looked up server-side, never taken
// from the token.
package auth

import (
	"context"
	"errors"
	"fmt"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/store"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the verified caller identity threaded through all
// operations.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// RoleLookup resolves the server-side role record for a uid.
type RoleLookup interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 bearer tokens issued by the auth frontend.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the shared signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the caller identity.
func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (*Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Unauthenticated, "invalid token")
	}
	if !token.Valid || c.Subject == "" {
		return nil, apperr.New(apperr.Unauthenticated, "invalid token")
	}

	return &Identity{
		UID:         c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
	}, nil
}

// Gate combines token verification with server-side role lookup.
type Gate struct {
	verifier Verifier
	roles    RoleLookup
}

// NewGate creates a caller identity gate.
func NewGate(verifier Verifier, roles RoleLookup) *Gate {
	return &Gate{verifier: verifier, roles: roles}
}

// Authenticate verifies a bearer token into an Identity.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	return g.verifier.Verify(ctx, token)
}

// VerifyAdmin reports whether the identity carries the admin role.
// The check hits the users table on every call; a role claim inside the
// token is never trusted.
func (g *Gate) VerifyAdmin(ctx context.Context, identity *Identity) (bool, error) {
	if identity == nil {
		return false, apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	user, err := g.roles.GetUser(ctx, identity.UID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Role == models.RoleAdmin, nil
}

// RequireAdmin returns PermissionDenied unless the identity is admin.
func (g *Gate) RequireAdmin(ctx context.Context, identity *Identity) error {
	isAdmin, err := g.VerifyAdmin(ctx, identity)
	if err != nil {
		return err
	}
	if !isAdmin {
		return apperr.New(apperr.PermissionDenied, "admin access required")
	}
	return nil
}
