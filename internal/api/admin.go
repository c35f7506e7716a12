package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/store"
)

// validResources is the closed set of resources a query permission may
// name. Anything else is a typo that would silently grant nothing.
var validResources = map[string]bool{
	"person":   true,
	"location": true,
}

func urlID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "Stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"persons":             stats.PersonCount,
		"locations":           stats.LocationCount,
		"assignments":         stats.AssignmentCount,
		"users":               stats.UserCount,
		"database_size_bytes": stats.DatabaseSize,
	})
}

type apiUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuspended bool   `json:"is_suspended"`
	IsSuperuser bool   `json:"is_superuser"`
	MFAEnabled  bool   `json:"mfa_enabled"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	out := make([]apiUser, 0, len(users))
	for _, u := range users {
		out = append(out, apiUser{
			ID: u.ID, Username: u.Username, Email: u.Email,
			IsActive: u.IsActive, IsSuspended: u.IsSuspended,
			IsSuperuser: u.IsSuperuser, MFAEnabled: u.MFAEnabled,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": out})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid id")
		return
	}
	if err := s.store.DeleteUser(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No such user")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "Delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.store.ListRoles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Role name is required")
		return
	}
	id, err := s.store.CreateRole(in.Name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "conflict", "Role already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "Create failed")
		return
	}
	writeJSON(w, http.StatusCreated, store.Role{ID: id, Name: in.Name})
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid id")
		return
	}
	if err := s.store.DeleteRole(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No such role")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "Delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid id")
		return
	}
	var in struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(r, &in); err != nil || in.UserID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}
	if err := s.store.AssignRole(in.UserID, roleID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Assign failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.store.ListOrganizations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"organizations": orgs})
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name          string `json:"name"`
		RefLocationID *int64 `json:"ref_location_id"`
	}
	if err := decodeJSON(r, &in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Organization name is required")
		return
	}
	id, err := s.store.CreateOrganization(in.Name, in.RefLocationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Create failed")
		return
	}
	writeJSON(w, http.StatusCreated, store.Organization{
		ID: id, Name: in.Name, RefLocationID: in.RefLocationID,
	})
}

func (s *Server) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid id")
		return
	}
	if err := s.store.DeleteOrganization(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No such organization")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "Delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListQueryPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.store.ListQueryPermissions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query_permissions": perms})
}

func (s *Server) handleCreateQueryPermission(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RoleID          int64  `json:"role_id"`
		Resource        string `json:"resource"`
		FieldConditions string `json:"field_conditions"`
	}
	if err := decodeJSON(r, &in); err != nil || in.RoleID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "role_id is required")
		return
	}
	if !validResources[in.Resource] {
		writeError(w, http.StatusBadRequest, "bad_request", "Resource must be person or location")
		return
	}
	// Reject malformed condition JSON here rather than at query time.
	if _, err := query.ParseConditions(in.FieldConditions); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid field_conditions JSON")
		return
	}
	id, err := s.store.CreateQueryPermission(in.RoleID, in.Resource, in.FieldConditions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Create failed")
		return
	}
	writeJSON(w, http.StatusCreated, store.QueryPermission{
		ID: id, RoleID: in.RoleID, Resource: in.Resource, FieldConditions: in.FieldConditions,
	})
}

func (s *Server) handleDeleteQueryPermission(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid id")
		return
	}
	if err := s.store.DeleteQueryPermission(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No such permission")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "Delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLoginAttempts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := s.store.ListLoginAttempts(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"login_attempts": attempts})
}
