package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cryptadb/crypta/internal/auth"
	"github.com/cryptadb/crypta/internal/email"
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// maxUploadBytes caps temporary attachment uploads.
const maxUploadBytes = 25 << 20

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	pair, err := s.auth.Login(in.Username, in.Password, clientIP(r))
	switch {
	case errors.Is(err, auth.ErrMFARequired):
		writeJSON(w, http.StatusOK, map[string]bool{"mfa_required": true})
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, http.StatusTooManyRequests, "locked", "Account locked, try again later")
	case errors.Is(err, auth.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "suspended", "Account suspended")
	case err != nil:
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid username or password")
	default:
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if _, err := s.auth.Register(in.Username, in.Email, in.Password); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	pair, err := s.auth.Refresh(in.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	pair, err := s.auth.VerifyMFA(in.Username, in.Code, clientIP(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid verification code")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleEnrollMFA(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token subject")
		return
	}
	url, err := s.auth.EnrollMFA(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Enrollment failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"otpauth_url": url})
}

// storeSSOState records a pending SSO state, dropping expired entries so
// abandoned flows cannot grow the map.
func (s *Server) storeSSOState(state string) {
	now := time.Now()
	s.ssoMu.Lock()
	defer s.ssoMu.Unlock()
	for k, deadline := range s.ssoStates {
		if now.After(deadline) {
			delete(s.ssoStates, k)
		}
	}
	s.ssoStates[state] = now.Add(10 * time.Minute)
}

// takeSSOState consumes a pending state, reporting whether it was
// present and unexpired. A state is single-use either way.
func (s *Server) takeSSOState(state string) bool {
	s.ssoMu.Lock()
	defer s.ssoMu.Unlock()
	deadline, ok := s.ssoStates[state]
	delete(s.ssoStates, state)
	return ok && !time.Now().After(deadline)
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Could not start SSO flow")
		return
	}
	s.storeSSOState(state)
	http.Redirect(w, r, s.sso.AuthURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.takeSSOState(r.URL.Query().Get("state")) {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid or expired state")
		return
	}
	pair, err := s.sso.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.logger.Warn("sso exchange failed", "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "SSO login failed")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// facetRequest pulls the base, filters, and scope out of a request.
func (s *Server) facetRequest(r *http.Request) (records.Base, []string, *query.Scope, error) {
	base, err := records.ParseBase(r.URL.Query().Get("base"))
	if err != nil {
		return 0, nil, nil, err
	}
	filters := r.URL.Query()["filters"]
	return base, filters, claimsFrom(r.Context()).Scope(), nil
}

func (s *Server) handleFilterTree(w http.ResponseWriter, r *http.Request) {
	base, filters, scope, err := s.facetRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	tree, err := s.engine.FilterTree(r.Context(), base, filters, scope)
	if err != nil {
		s.logger.Error("filter tree", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"filter_tree": tree})
}

// parseStatsSelection reads the stats constraint params for the base's
// declared stat fields: <field>_min and <field>_max for numbers, <field>
// for booleans.
func parseStatsSelection(r *http.Request, base records.Base) query.StatsSelection {
	sel := query.StatsSelection{}
	q := r.URL.Query()
	for _, sf := range records.StatFields(base) {
		if sf.Type == records.StatBoolean {
			if v := q.Get(sf.Field); v != "" {
				if b, err := strconv.ParseBool(v); err == nil {
					if sel.Bools == nil {
						sel.Bools = make(map[string]bool)
					}
					sel.Bools[sf.Field] = b
				}
			}
			continue
		}
		minStr, maxStr := q.Get(sf.Field+"_min"), q.Get(sf.Field+"_max")
		if minStr == "" && maxStr == "" {
			continue
		}
		lo, err1 := strconv.ParseFloat(minStr, 64)
		hi, err2 := strconv.ParseFloat(maxStr, 64)
		if minStr == "" {
			lo, err1 = -1<<52, nil
		}
		if maxStr == "" {
			hi, err2 = 1<<52, nil
		}
		if err1 != nil || err2 != nil {
			continue
		}
		if sel.Ranges == nil {
			sel.Ranges = make(map[string][2]float64)
		}
		sel.Ranges[sf.Field] = [2]float64{lo, hi}
	}
	return sel
}

func (s *Server) handleFilterResults(w http.ResponseWriter, r *http.Request) {
	base, filters, scope, err := s.facetRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	rs, err := s.engine.FilterResults(r.Context(), base, filters, parseStatsSelection(r, base), scope)
	if err != nil {
		s.logger.Error("filter results", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	scope := claimsFrom(r.Context()).Scope()
	results, err := s.engine.Search(r.Context(), r.URL.Query().Get("q"), scope)
	if err != nil {
		s.logger.Error("search", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	base, _, scope, err := s.facetRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid id")
		return
	}
	detail, err := s.engine.Details(r.Context(), base, id, scope)
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Record not found")
		return
	}
	if err != nil {
		s.logger.Error("details", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type emailCountRequest struct {
	Base    string   `json:"base"`
	Filters []string `json:"filters"`
	query.RecipientClasses
}

func (s *Server) handleEmailCount(w http.ResponseWriter, r *http.Request) {
	var in emailCountRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	base, err := records.ParseBase(in.Base)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	scope := claimsFrom(r.Context()).Scope()
	n, err := s.engine.RecipientCount(r.Context(), base, in.Filters, in.RecipientClasses, scope)
	if err != nil {
		s.logger.Error("email count", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleUploadTmp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid multipart body")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing file field")
		return
	}
	defer file.Close()

	dir := s.cfg.UploadsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Upload storage unavailable")
		return
	}
	name := time.Now().UTC().Format("20060102T150405") + "-" + filepath.Base(hdr.Filename)
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Upload storage unavailable")
		return
	}
	if _, err := io.Copy(out, io.LimitReader(file, maxUploadBytes)); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, "internal", "Upload failed")
		return
	}
	out.Close()

	if _, err := s.store.AddTempUpload(dst, hdr.Filename); err != nil {
		s.logger.Error("record temp upload", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": "/uploads/tmp/" + name})
}

func (s *Server) handleEmailSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Email dispatch is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid multipart body")
		return
	}

	base, err := records.ParseBase(r.FormValue("base"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	classes := query.RecipientClasses{
		Personal: r.FormValue("personalEmail") == "true",
		Parish:   r.FormValue("parishEmail") == "true",
		Diocesan: r.FormValue("diocesanEmail") == "true",
	}
	subject, body := r.FormValue("subject"), r.FormValue("body")
	if err := email.Validate(subject, body, classes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	scope := claimsFrom(r.Context()).Scope()
	recipients, err := s.engine.Recipients(r.Context(), base, r.Form["filters"], classes, scope)
	if err != nil {
		s.logger.Error("resolve recipients", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}

	req := email.Request{Subject: subject, Body: body, Recipients: recipients}
	if url := r.FormValue("attachment_url"); url != "" {
		att, err := s.loadUpload(url)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Unknown attachment")
			return
		}
		req.Attachment = att
	}

	sent, err := s.sender.Send(r.Context(), req)
	if err != nil {
		s.logger.Error("dispatch", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Dispatch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// loadUpload resolves an upload URL from handleUploadTmp back to the
// stored file. The name is path-cleaned so a crafted URL cannot escape
// the uploads directory.
func (s *Server) loadUpload(url string) (*email.Attachment, error) {
	name := filepath.Base(url)
	path := filepath.Join(s.cfg.UploadsDir(), name)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &email.Attachment{
		Filename:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Content:     content,
	}, nil
}
