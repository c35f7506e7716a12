// Package auth implements account authentication for the crypta gateway:
// password verification with lockout, JWT access and refresh tokens
// carrying the user's query permissions, and TOTP-based MFA.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cryptadb/crypta/internal/config"
	"github.com/cryptadb/crypta/internal/store"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords
	// alike, so a caller cannot probe which usernames exist.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account locked, try again later")

	// ErrAccountSuspended is returned for suspended or inactive accounts.
	ErrAccountSuspended = errors.New("account suspended")

	// ErrMFARequired signals that password verification succeeded but a
	// TOTP code is still needed before tokens are issued.
	ErrMFARequired = errors.New("mfa verification required")

	// ErrInvalidMFACode is returned for a wrong or reused TOTP code.
	ErrInvalidMFACode = errors.New("invalid verification code")
)

// Service authenticates users against the store.
type Service struct {
	store  *store.Store
	cfg    config.AuthConfig
	logger *slog.Logger
	tokens *TokenIssuer

	// now is swapped in tests to control lockout windows.
	now func() time.Time
}

// NewService creates an auth service.
func NewService(s *store.Store, cfg config.AuthConfig, logger *slog.Logger) (*Service, error) {
	issuer, err := NewTokenIssuer(s, cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:  s,
		cfg:    cfg,
		logger: logger,
		tokens: issuer,
		now:    time.Now,
	}, nil
}

// Tokens exposes the issuer for middleware verification.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates a new account. New accounts hold no roles until an
// administrator grants them, so they see empty result sets.
func (s *Service) Register(username, email, password string) (int64, error) {
	if username == "" || email == "" {
		return 0, errors.New("username and email are required")
	}
	if len(password) < 8 {
		return 0, errors.New("password must be at least 8 characters")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	id, err := s.store.CreateUser(username, email, hash)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, errors.New("username or email already taken")
		}
		return 0, err
	}
	s.logger.Info("user registered", "username", username)
	return id, nil
}

// Login verifies credentials and returns a token pair. Failed attempts
// count toward lockout; reaching the threshold locks the account for the
// configured window. MFA-enrolled accounts get ErrMFARequired instead of
// tokens; the caller completes the login with VerifyMFA.
func (s *Service) Login(username, password, ip string) (*TokenPair, error) {
	u, err := s.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Still record the attempt for the audit trail.
			_ = s.store.RecordLoginResult(username, ip, false, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if u.LockedUntil != nil && s.now().Before(*u.LockedUntil) {
		return nil, ErrAccountLocked
	}
	if u.IsSuspended || !u.IsActive {
		return nil, ErrAccountSuspended
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		var lockUntil *time.Time
		if u.FailedLogins+1 >= s.cfg.LockoutMax {
			t := s.now().Add(time.Duration(s.cfg.LockoutMinutes) * time.Minute)
			lockUntil = &t
			s.logger.Warn("account locked", "username", username, "until", t)
		}
		if err := s.store.RecordLoginResult(username, ip, false, lockUntil); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if u.MFAEnabled {
		return nil, ErrMFARequired
	}
	return s.completeLogin(u, ip)
}

// VerifyMFA finishes an MFA login by checking the TOTP code.
func (s *Service) VerifyMFA(username, code, ip string) (*TokenPair, error) {
	u, err := s.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.MFAEnabled || u.MFASecret == "" {
		return nil, ErrInvalidCredentials
	}
	if !validateTOTP(u.MFASecret, code) {
		_ = s.store.RecordLoginResult(username, ip, false, nil)
		return nil, ErrInvalidMFACode
	}
	return s.completeLogin(u, ip)
}

func (s *Service) completeLogin(u *store.User, ip string) (*TokenPair, error) {
	if err := s.store.RecordLoginResult(u.Username, ip, true, nil); err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login", "username", u.Username)
	return pair, nil
}

// Refresh trades a valid refresh token for a new pair. Permissions are
// re-read from the store so a grant or revocation takes effect on the
// next refresh.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.IsSuspended || !u.IsActive {
		return nil, ErrAccountSuspended
	}
	return s.tokens.Issue(u)
}
