package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cryptadb/crypta/internal/config"
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/store"
)

// ErrInvalidToken covers expired, malformed, and mis-signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// PermissionClaim is one query permission embedded in an access token.
type PermissionClaim struct {
	Resource   string              `json:"resource"`
	Conditions map[string][]string `json:"conditions,omitempty"`
}

// Claims is the access-token payload. The query scope travels in the
// token, so a request needs no extra store lookups to enforce it.
type Claims struct {
	jwt.RegisteredClaims
	Username    string            `json:"username"`
	Superuser   bool              `json:"superuser,omitempty"`
	Permissions []PermissionClaim `json:"permissions,omitempty"`
	TokenUse    string            `json:"token_use"` // "access" or "refresh"
}

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenIssuer signs and verifies HMAC JWTs.
type TokenIssuer struct {
	store      *store.Store
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates an issuer. A missing signing key gets a random
// one, which invalidates outstanding tokens on restart; persistent
// deployments set signing_key in the config.
func NewTokenIssuer(s *store.Store, cfg config.AuthConfig) (*TokenIssuer, error) {
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
	}
	return &TokenIssuer{
		store:      s,
		key:        key,
		accessTTL:  time.Duration(cfg.AccessMinutes) * time.Minute,
		refreshTTL: time.Duration(cfg.RefreshDays) * 24 * time.Hour,
	}, nil
}

// Issue creates a token pair for a user, embedding the query permissions
// granted through the user's roles.
func (t *TokenIssuer) Issue(u *store.User) (*TokenPair, error) {
	perms, err := t.store.UserQueryPermissions(u.ID)
	if err != nil {
		return nil, err
	}
	claims := make([]PermissionClaim, 0, len(perms))
	for _, p := range perms {
		scoped, err := query.ParseConditions(p.FieldConditions)
		if err != nil {
			return nil, fmt.Errorf("permission %d: %w", p.ID, err)
		}
		claims = append(claims, PermissionClaim{Resource: p.Resource, Conditions: scoped})
	}

	access, err := t.sign(u, claims, "access", t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(u, nil, "refresh", t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) sign(u *store.User, perms []PermissionClaim, use string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "crypta",
		},
		Username:    u.Username,
		Superuser:   u.IsSuperuser,
		Permissions: perms,
		TokenUse:    use,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an access token, returning its claims.
func (t *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != "access" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns the user id.
func (t *TokenIssuer) VerifyRefresh(tokenStr string) (int64, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return 0, err
	}
	if claims.TokenUse != "refresh" {
		return 0, ErrInvalidToken
	}
	var id int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &id); err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

func (t *TokenIssuer) parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Scope converts verified claims into the query layer's scope.
func (c *Claims) Scope() *query.Scope {
	if c.Superuser {
		return &query.Scope{Superuser: true}
	}
	perms := make([]query.Permission, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		perms = append(perms, query.Permission{
			Resource:   p.Resource,
			Conditions: p.Conditions,
		})
	}
	return &query.Scope{Permissions: perms}
}
