package auth

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/cryptadb/crypta/internal/config"
	"github.com/cryptadb/crypta/internal/store"
	"github.com/cryptadb/crypta/internal/testutil/dbtest"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		SigningKey:     "test-signing-key",
		AccessMinutes:  15,
		RefreshDays:    7,
		LockoutMax:     3,
		LockoutMinutes: 15,
	}
}

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s := dbtest.Open(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(s, testConfig(), logger)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, s
}

func register(t *testing.T, svc *Service, username, password string) int64 {
	t.Helper()
	id, err := svc.Register(username, username+"@diocese.test", password)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return id
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Register("", "a@b.test", "longenough"); err == nil {
		t.Error("empty username accepted")
	}
	if _, err := svc.Register("jdoe", "a@b.test", "short"); err == nil {
		t.Error("short password accepted")
	}
	register(t, svc, "jdoe", "longenough")
	if _, err := svc.Register("jdoe", "other@b.test", "longenough"); err == nil {
		t.Error("duplicate username accepted")
	}
}

func TestLoginSuccessAndTokenClaims(t *testing.T) {
	svc, s := newService(t)
	id := register(t, svc, "clerk", "password123")

	rid, err := s.CreateRole("clerk-role")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AssignRole(id, rid); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateQueryPermission(rid, "person",
		`{"residence_city": "Columbus"}`); err != nil {
		t.Fatal(err)
	}

	pair, err := svc.Login("clerk", "password123", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := svc.Tokens().Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Username != "clerk" {
		t.Errorf("username = %q", claims.Username)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0].Resource != "person" {
		t.Errorf("permissions = %+v", claims.Permissions)
	}
	scope := claims.Scope()
	if scope.Superuser || len(scope.Permissions) != 1 {
		t.Errorf("scope = %+v", scope)
	}
	if got := scope.Permissions[0].Conditions["residence_city"]; len(got) != 1 || got[0] != "Columbus" {
		t.Errorf("conditions = %v", scope.Permissions[0].Conditions)
	}

	// A refresh token cannot be used as an access token.
	if _, err := svc.Tokens().Verify(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh-as-access error = %v, want ErrInvalidToken", err)
	}
}

func TestLoginWrongPasswordAndLockout(t *testing.T) {
	svc, s := newService(t)
	register(t, svc, "jdoe", "password123")

	for i := 0; i < 3; i++ {
		if _, err := svc.Login("jdoe", "wrong", "10.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidCredentials", i, err)
		}
	}

	// Threshold reached; even the right password is rejected now.
	if _, err := svc.Login("jdoe", "password123", "10.0.0.1"); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("locked login error = %v, want ErrAccountLocked", err)
	}

	// Window elapses.
	svc.now = func() time.Time { return time.Now().Add(20 * time.Minute) }
	if _, err := svc.Login("jdoe", "password123", "10.0.0.1"); err != nil {
		t.Errorf("post-window login error = %v", err)
	}

	u, err := s.GetUserByUsername("jdoe")
	if err != nil {
		t.Fatal(err)
	}
	if u.FailedLogins != 0 || u.LockedUntil != nil {
		t.Errorf("counters not cleared: %+v", u)
	}
}

func TestLoginUnknownUserRecordsAttempt(t *testing.T) {
	svc, s := newService(t)
	if _, err := svc.Login("ghost", "whatever", "10.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
	attempts, err := s.ListLoginAttempts(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || attempts[0].Username != "ghost" || attempts[0].Successful {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestMFAFlow(t *testing.T) {
	svc, _ := newService(t)
	id := register(t, svc, "jdoe", "password123")

	url, err := svc.EnrollMFA(id)
	if err != nil {
		t.Fatalf("EnrollMFA() error = %v", err)
	}
	if url == "" {
		t.Fatal("empty otpauth URL")
	}

	if _, err := svc.Login("jdoe", "password123", "10.0.0.1"); !errors.Is(err, ErrMFARequired) {
		t.Fatalf("enrolled login error = %v, want ErrMFARequired", err)
	}

	if _, err := svc.VerifyMFA("jdoe", "000000", "10.0.0.1"); !errors.Is(err, ErrInvalidMFACode) {
		t.Errorf("bad code error = %v, want ErrInvalidMFACode", err)
	}

	u, _ := svc.store.GetUser(id)
	code, err := totp.GenerateCode(u.MFASecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	pair, err := svc.VerifyMFA("jdoe", code, "10.0.0.1")
	if err != nil {
		t.Fatalf("VerifyMFA() error = %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("no access token after MFA")
	}
}

func TestRefreshReReadsPermissions(t *testing.T) {
	svc, s := newService(t)
	id := register(t, svc, "clerk", "password123")

	pair, err := svc.Login("clerk", "password123", "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}

	// Grant arrives after login; the next refresh picks it up.
	rid, _ := s.CreateRole("clerk-role")
	s.AssignRole(id, rid)
	s.CreateQueryPermission(rid, "location", "{}")

	fresh, err := svc.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	claims, err := svc.Tokens().Verify(fresh.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0].Resource != "location" {
		t.Errorf("permissions after refresh = %+v", claims.Permissions)
	}

	if _, err := svc.Refresh(fresh.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access-as-refresh error = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.Refresh("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage refresh error = %v, want ErrInvalidToken", err)
	}
}
