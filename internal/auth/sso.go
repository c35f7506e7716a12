package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/cryptadb/crypta/internal/config"
	"github.com/cryptadb/crypta/internal/store"
)

// SSO handles OIDC single sign-on against the configured issuer. Accounts
// are provisioned on first login, matched by verified email.
type SSO struct {
	store    *store.Store
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauthCfg oauth2.Config
	issuer   *TokenIssuer
	logger   *slog.Logger
}

// NewSSO discovers the issuer and prepares the flow. Returns nil without
// error when SSO is not configured.
func NewSSO(ctx context.Context, s *store.Store, cfg config.AuthConfig, issuer *TokenIssuer, logger *slog.Logger) (*SSO, error) {
	if cfg.OIDCIssuer == "" || cfg.OIDCClientID == "" {
		return nil, nil
	}
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer: %w", err)
	}
	return &SSO{
		store:    s,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
		oauthCfg: oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCSecret,
			RedirectURL:  cfg.OIDCRedirect,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		issuer: issuer,
		logger: logger,
	}, nil
}

// NewState generates an opaque state parameter for the redirect.
func NewState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthURL returns the provider redirect URL for the given state.
func (s *SSO) AuthURL(state string) string {
	return s.oauthCfg.AuthCodeURL(state)
}

// Exchange completes the flow: trades the code, verifies the ID token,
// finds or provisions the account, and issues crypta tokens. Provisioned
// accounts start without roles.
func (s *SSO) Exchange(ctx context.Context, code string) (*TokenPair, error) {
	tok, err := s.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("provider response missing id_token")
	}
	idToken, err := s.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, errors.New("provider did not supply a verified email")
	}

	u, err := s.store.GetUserByEmail(claims.Email)
	if errors.Is(err, store.ErrNotFound) {
		id, cerr := s.store.CreateUser(claims.Email, claims.Email, "")
		if cerr != nil {
			return nil, fmt.Errorf("provision sso user: %w", cerr)
		}
		s.logger.Info("sso user provisioned", "email", claims.Email)
		u, err = s.store.GetUser(id)
	}
	if err != nil {
		return nil, err
	}
	if u.IsSuspended || !u.IsActive {
		return nil, ErrAccountSuspended
	}

	_ = s.store.RecordLoginResult(u.Username, "", true, nil)
	return s.issuer.Issue(u)
}
