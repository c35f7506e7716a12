package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// fakeJWT builds an unsigned token whose payload expires at exp. The
// client only reads the exp claim locally.
func fakeJWT(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	return header + "." + payload + ".sig"
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, AllowInsecure: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestNewRejectsPlainHTTPOffLoopback(t *testing.T) {
	if _, err := New(Config{URL: "http://nas.local:3000"}); err == nil {
		t.Error("plain HTTP to a remote host should be rejected")
	}
	if _, err := New(Config{URL: "http://localhost:3000"}); err != nil {
		t.Errorf("loopback HTTP rejected: %v", err)
	}
	if _, err := New(Config{URL: "ftp://x"}); err == nil {
		t.Error("non-HTTP scheme should be rejected")
	}
}

func TestLoginStoresTokens(t *testing.T) {
	valid := fakeJWT(time.Now().Add(15 * time.Minute))
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["username"] != "jdoe" || in["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(TokenPair{AccessToken: valid, RefreshToken: valid})
	})

	dir := t.TempDir()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c, err := New(Config{URL: srv.URL, AllowInsecure: true,
		TokenPath: filepath.Join(dir, "tokens.json")})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Login(context.Background(), "jdoe", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !c.Authenticated() {
		t.Error("client not authenticated after login")
	}

	// A second client on the same token path picks the tokens up.
	c2, err := New(Config{URL: srv.URL, AllowInsecure: true,
		TokenPath: filepath.Join(dir, "tokens.json")})
	if err != nil {
		t.Fatal(err)
	}
	if !c2.Authenticated() {
		t.Error("persisted tokens not loaded")
	}
}

func TestLoginMFARequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"mfa_required": true})
	})
	c, _ := newTestClient(t, mux)

	err := c.Login(context.Background(), "jdoe", "secret")
	if !errors.Is(err, ErrMFARequired) {
		t.Errorf("Login() error = %v, want ErrMFARequired", err)
	}
	if c.Authenticated() {
		t.Error("tokens must not be issued before MFA verification")
	}
}

func TestExpiredAccessTokenRefreshesOnce(t *testing.T) {
	expired := fakeJWT(time.Now().Add(-time.Minute))
	valid := fakeJWT(time.Now().Add(15 * time.Minute))
	refreshes := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		json.NewEncoder(w).Encode(TokenPair{AccessToken: valid, RefreshToken: valid})
	})
	mux.HandleFunc("/api/v1/filter_tree", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"filter_tree": []query.FilterGroup{}})
	})
	c, _ := newTestClient(t, mux)
	c.SetTokens(TokenPair{AccessToken: expired, RefreshToken: valid})

	if _, err := c.FilterTree(context.Background(), records.BasePerson, nil); err != nil {
		t.Fatalf("FilterTree() error = %v", err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
}

func TestExpiredRefreshTokenRequiresLogin(t *testing.T) {
	expired := fakeJWT(time.Now().Add(-time.Minute))
	c, _ := newTestClient(t, http.NewServeMux())
	c.SetTokens(TokenPair{AccessToken: expired, RefreshToken: expired})

	_, err := c.FilterTree(context.Background(), records.BasePerson, nil)
	if !errors.Is(err, ErrLoginRequired) {
		t.Errorf("error = %v, want ErrLoginRequired", err)
	}
}

func TestFacetQueryEncoding(t *testing.T) {
	valid := fakeJWT(time.Now().Add(15 * time.Minute))
	var gotQuery string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/filter_results", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		filters := r.URL.Query()["filters"]
		if len(filters) != 2 {
			t.Errorf("filters = %v, want 2 repeated params", filters)
		}
		json.NewEncoder(w).Encode(query.ResultSet{})
	})
	c, _ := newTestClient(t, mux)
	c.SetTokens(TokenPair{AccessToken: valid, RefreshToken: valid})

	_, err := c.FilterResults(context.Background(), records.BasePerson,
		[]string{"status:Active", "person_type:Priest"},
		map[string]string{"birth_year_min": "1960"})
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	for _, want := range []string{"base=person", "birth_year_min=1960"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestUploadThenSend(t *testing.T) {
	valid := fakeJWT(time.Now().Add(15 * time.Minute))
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/upload-tmp", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		f.Close()
		if hdr.Filename != "roster.pdf" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "/uploads/tmp/abc.pdf"})
	})
	mux.HandleFunc("/api/v1/email/send", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		if r.FormValue("attachment_url") != "/uploads/tmp/abc.pdf" {
			t.Errorf("attachment_url = %q", r.FormValue("attachment_url"))
		}
		// The payload carries exactly the three class flags.
		for _, flag := range []string{"personalEmail", "parishEmail", "diocesanEmail"} {
			if r.FormValue(flag) == "" {
				t.Errorf("flag %s missing", flag)
			}
		}
		json.NewEncoder(w).Encode(map[string]int{"sent": 3})
	})
	c, _ := newTestClient(t, mux)
	c.SetTokens(TokenPair{AccessToken: valid, RefreshToken: valid})

	ctx := context.Background()
	url, err := c.UploadAttachment(ctx, "roster.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("UploadAttachment() error = %v", err)
	}
	sent, err := c.SendEmail(ctx, SendRequest{
		Base:          records.BasePerson,
		Subject:       "Clergy day",
		Body:          "Details attached.",
		Classes:       query.RecipientClasses{Personal: true},
		AttachmentURL: url,
	})
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if sent != 3 {
		t.Errorf("sent = %d, want 3", sent)
	}
}

func TestEmailCountPayload(t *testing.T) {
	valid := fakeJWT(time.Now().Add(15 * time.Minute))
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/email/count", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]interface{}
		json.NewDecoder(r.Body).Decode(&in)
		for _, flag := range []string{"personalEmail", "parishEmail", "diocesanEmail"} {
			if _, ok := in[flag]; !ok {
				t.Errorf("payload missing %s: %v", flag, in)
			}
		}
		json.NewEncoder(w).Encode(map[string]int{"count": 4})
	})
	c, _ := newTestClient(t, mux)
	c.SetTokens(TokenPair{AccessToken: valid, RefreshToken: valid})

	n, err := c.EmailCount(context.Background(), records.BasePerson, nil,
		query.RecipientClasses{Personal: true, Diocesan: true})
	if err != nil {
		t.Fatalf("EmailCount() error = %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}
