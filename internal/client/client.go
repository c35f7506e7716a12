// Package client provides an HTTP client for a remote crypta gateway.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrLoginRequired is returned when no usable token remains: the caller
// should send the user back through the login flow.
var ErrLoginRequired = eris.New("login required")

// ErrMFARequired is returned by Login when the account has MFA enrolled
// and a TOTP code must be verified before tokens are issued.
var ErrMFARequired = eris.New("mfa verification required")

// Config holds configuration for creating a client.
type Config struct {
	URL           string
	AllowInsecure bool
	Timeout       time.Duration
	TokenPath     string // where to persist tokens, empty disables
}

// TokenPair carries the bearer tokens issued at login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Client is an authenticated HTTP client for the crypta gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokenPath  string
	tokens     TokenPair
}

// New creates a client. Loopback URLs may use plain HTTP; anything else
// requires HTTPS unless AllowInsecure is set.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, eris.New("gateway URL is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "invalid gateway URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, eris.Errorf("URL scheme must be http or https, got %s", parsed.Scheme)
	}
	if parsed.Scheme == "http" && !cfg.AllowInsecure && !isLoopback(parsed.Hostname()) {
		return nil, eris.New("HTTPS required for remote connections; " +
			"set allow_insecure = true under [remote] for trusted networks")
	}
	if parsed.Host == "" {
		return nil, eris.New("gateway URL must include a host")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokenPath:  cfg.TokenPath,
	}
	c.loadTokens()
	return c, nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// SetTokens installs a token pair, persisting it when a token path is
// configured.
func (c *Client) SetTokens(t TokenPair) {
	c.tokens = t
	c.saveTokens()
}

// Authenticated reports whether the client holds tokens.
func (c *Client) Authenticated() bool {
	return c.tokens.AccessToken != ""
}

func (c *Client) loadTokens() {
	if c.tokenPath == "" {
		return
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, &c.tokens)
}

func (c *Client) saveTokens() {
	if c.tokenPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0700); err != nil {
		return
	}
	data, err := json.Marshal(c.tokens)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.tokenPath, data, 0600)
}

// tokenExpired decodes the JWT payload locally, without verifying the
// signature, and checks the exp claim. The gateway still verifies every
// request; this only avoids sending a request we know will bounce.
func tokenExpired(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return true
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return true
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return true
	}
	// Leave a small margin so a token does not expire mid-flight.
	return time.Now().Add(10 * time.Second).After(time.Unix(claims.Exp, 0))
}

// ensureToken returns a usable access token, refreshing once when the
// local copy has expired.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if c.tokens.AccessToken == "" {
		return "", ErrLoginRequired
	}
	if !tokenExpired(c.tokens.AccessToken) {
		return c.tokens.AccessToken, nil
	}
	if c.tokens.RefreshToken == "" || tokenExpired(c.tokens.RefreshToken) {
		return "", ErrLoginRequired
	}
	if err := c.Refresh(ctx); err != nil {
		return "", ErrLoginRequired
	}
	return c.tokens.AccessToken, nil
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return eris.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
	}
	return eris.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// jsonRequest builds a POST with a JSON body.
func jsonRequest(ctx context.Context, url string, in interface{}) (*http.Request, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doJSON performs an authenticated request with an optional JSON body and
// decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var req *http.Request
	var err error
	if in != nil {
		req, err = jsonRequest(ctx, c.baseURL+path, in)
		if req != nil {
			req.Method = method
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	return c.send(ctx, req, path, out, true)
}

func (c *Client) send(ctx context.Context, req *http.Request, path string, out interface{}, auth bool) error {
	req.Header.Set("Accept", "application/json")
	if auth {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s %s", req.Method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrLoginRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// doMultipart performs an authenticated multipart POST built by fill.
func (c *Client) doMultipart(ctx context.Context, path string, fill func(*multipart.Writer) error, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := fill(mw); err != nil {
		return eris.Wrap(err, "build multipart body")
	}
	if err := mw.Close(); err != nil {
		return eris.Wrap(err, "close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(ctx, req, path, out, true)
}

// Ping checks gateway reachability.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if err := c.send(ctx, req, "/health", nil, false); err != nil {
		return eris.Wrapf(err, "gateway unreachable at %s", c.baseURL)
	}
	return nil
}
