package client

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// Login exchanges credentials for tokens. When the account has MFA
// enrolled the gateway withholds tokens and the returned error is
// ErrMFARequired; the caller follows up with VerifyMFA.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		TokenPair
		MFARequired bool `json:"mfa_required"`
	}
	in := map[string]string{"username": username, "password": password}
	req, err := c.newJSONRequest(ctx, "/api/v1/auth/login", in)
	if err != nil {
		return err
	}
	if err := c.send(ctx, req, "/api/v1/auth/login", &resp, false); err != nil {
		return err
	}
	if resp.MFARequired {
		return ErrMFARequired
	}
	c.SetTokens(resp.TokenPair)
	return nil
}

// VerifyMFA completes a login by presenting a TOTP code.
func (c *Client) VerifyMFA(ctx context.Context, username, code string) error {
	var resp TokenPair
	in := map[string]string{"username": username, "code": code}
	req, err := c.newJSONRequest(ctx, "/api/v1/auth/mfa/verify", in)
	if err != nil {
		return err
	}
	if err := c.send(ctx, req, "/api/v1/auth/mfa/verify", &resp, false); err != nil {
		return err
	}
	c.SetTokens(resp)
	return nil
}

// Register creates an account. New accounts start without roles; an
// administrator grants access afterwards.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	in := map[string]string{"username": username, "email": email, "password": password}
	req, err := c.newJSONRequest(ctx, "/api/v1/auth/register", in)
	if err != nil {
		return err
	}
	return c.send(ctx, req, "/api/v1/auth/register", nil, false)
}

// Refresh trades the refresh token for a fresh pair.
func (c *Client) Refresh(ctx context.Context) error {
	var resp TokenPair
	in := map[string]string{"refresh_token": c.tokens.RefreshToken}
	req, err := c.newJSONRequest(ctx, "/api/v1/auth/refresh", in)
	if err != nil {
		return err
	}
	if err := c.send(ctx, req, "/api/v1/auth/refresh", &resp, false); err != nil {
		return err
	}
	c.SetTokens(resp)
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, path string, in interface{}) (*http.Request, error) {
	req, err := jsonRequest(ctx, c.baseURL+path, in)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	return req, nil
}

func facetQuery(base records.Base, filters []string, stats map[string]string) url.Values {
	v := url.Values{}
	v.Set("base", base.String())
	for _, f := range filters {
		v.Add("filters", f)
	}
	for k, val := range stats {
		v.Set(k, val)
	}
	return v
}

// FilterTree fetches the filter tree for the base under the applied
// filters.
func (c *Client) FilterTree(ctx context.Context, base records.Base, filters []string) ([]query.FilterGroup, error) {
	var resp struct {
		FilterTree []query.FilterGroup `json:"filter_tree"`
	}
	path := "/api/v1/filter_tree?" + facetQuery(base, filters, nil).Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.FilterTree, nil
}

// FilterResults fetches the filtered grid, column catalog, and stats
// declarations.
func (c *Client) FilterResults(ctx context.Context, base records.Base, filters []string, stats map[string]string) (*query.ResultSet, error) {
	var resp query.ResultSet
	path := "/api/v1/filter_results?" + facetQuery(base, filters, stats).Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search runs the global name search.
func (c *Client) Search(ctx context.Context, q string) (*query.SearchResults, error) {
	var resp struct {
		Results query.SearchResults `json:"results"`
	}
	path := "/api/v1/search?q=" + url.QueryEscape(q)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Results, nil
}

// Details fetches the full record payload for one row.
func (c *Client) Details(ctx context.Context, base records.Base, id int64) (*query.Detail, error) {
	var resp query.Detail
	path := "/api/v1/details?base=" + base.String() + "&id=" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EmailCount previews how many distinct recipients a send would reach.
// The payload carries exactly the three class flags alongside the filter
// state.
func (c *Client) EmailCount(ctx context.Context, base records.Base, filters []string, classes query.RecipientClasses) (int, error) {
	in := struct {
		Base    string   `json:"base"`
		Filters []string `json:"filters"`
		query.RecipientClasses
	}{Base: base.String(), Filters: filters, RecipientClasses: classes}
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/email/count", in, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// UploadAttachment streams a file to temporary storage ahead of a send
// and returns the server-side URL to reference in SendEmail.
func (c *Client) UploadAttachment(ctx context.Context, filename string, r io.Reader) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	err := c.doMultipart(ctx, "/api/v1/upload-tmp", func(mw *multipart.Writer) error {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, r)
		return err
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// SendRequest is the full email dispatch payload.
type SendRequest struct {
	Base          records.Base
	Filters       []string
	Subject       string
	Body          string
	Classes       query.RecipientClasses
	AttachmentURL string
}

// SendEmail dispatches an email to the filtered recipients. Attachments
// are uploaded first via UploadAttachment; the send references the
// returned URL.
func (c *Client) SendEmail(ctx context.Context, req SendRequest) (int, error) {
	var resp struct {
		Sent int `json:"sent"`
	}
	err := c.doMultipart(ctx, "/api/v1/email/send", func(mw *multipart.Writer) error {
		fields := map[string]string{
			"base":          req.Base.String(),
			"subject":       req.Subject,
			"body":          req.Body,
			"personalEmail": strconv.FormatBool(req.Classes.Personal),
			"parishEmail":   strconv.FormatBool(req.Classes.Parish),
			"diocesanEmail": strconv.FormatBool(req.Classes.Diocesan),
		}
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				return err
			}
		}
		for _, f := range req.Filters {
			if err := mw.WriteField("filters", f); err != nil {
				return err
			}
		}
		if req.AttachmentURL != "" {
			if err := mw.WriteField("attachment_url", req.AttachmentURL); err != nil {
				return err
			}
		}
		return nil
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Sent, nil
}
