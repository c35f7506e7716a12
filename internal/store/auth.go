package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User is an authentication account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsSuspended  bool
	IsSuperuser  bool
	MFAEnabled   bool
	MFASecret    string
	FailedLogins int
	LockedUntil  *time.Time
	LastLogin    *time.Time
	DateJoined   time.Time
	RefPersonID  *int64
}

// Role names a grant bundle users can hold.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Organization maps a user group to an optional location.
type Organization struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	RefLocationID *int64 `json:"ref_location_id,omitempty"`
}

// QueryPermission restricts which rows a role may see for a resource.
// FieldConditions is a JSON object of {filter_key: value or [values]}.
type QueryPermission struct {
	ID              int64  `json:"id"`
	RoleID          int64  `json:"role_id"`
	Resource        string `json:"resource"`
	FieldConditions string `json:"field_conditions"`
}

// LoginAttempt is one audit row for a login.
type LoginAttempt struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Successful bool      `json:"successful"`
	IPAddress  string    `json:"ip_address"`
	Time       time.Time `json:"time"`
}

const userColumns = `id, username, email, password_hash, is_active, is_suspended,
	is_superuser, mfa_enabled, COALESCE(mfa_secret, ''), failed_logins,
	locked_until, last_login, date_joined, ref_person_id`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var locked, lastLogin, joined sql.NullString
	var refPerson sql.NullInt64
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.IsActive, &u.IsSuspended, &u.IsSuperuser, &u.MFAEnabled, &u.MFASecret,
		&u.FailedLogins, &locked, &lastLogin, &joined, &refPerson)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.LockedUntil = parseTimePtr(locked)
	u.LastLogin = parseTimePtr(lastLogin)
	if t := parseTimePtr(joined); t != nil {
		u.DateJoined = *t
	}
	if refPerson.Valid {
		u.RefPersonID = &refPerson.Int64
	}
	return &u, nil
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

// CreateUser inserts a new user and returns its id.
func (s *Store) CreateUser(username, email, passwordHash string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO user (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

// GetUserByUsername looks a user up by username.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM user WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByEmail looks a user up by email (used by SSO provisioning).
func (s *Store) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM user WHERE email = ?`, email)
	return scanUser(row)
}

// GetUser looks a user up by id.
func (s *Store) GetUser(id int64) (*User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM user WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers() ([]*User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM user ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user by id.
func (s *Store) DeleteUser(id int64) error {
	res, err := s.db.Exec(`DELETE FROM user WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginResult updates lockout counters after a login attempt and
// writes the audit row. A successful login clears the counter and stamps
// last_login; lockUntil is only set when the failure threshold is reached.
func (s *Store) RecordLoginResult(username, ip string, ok bool, lockUntil *time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO login_attempt (username, successful, ip_address) VALUES (?, ?, ?)`,
			username, ok, ip); err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		if ok {
			_, err := tx.Exec(
				`UPDATE user SET failed_logins = 0, locked_until = NULL,
					last_login = datetime('now') WHERE username = ?`, username)
			return err
		}
		if lockUntil != nil {
			_, err := tx.Exec(
				`UPDATE user SET failed_logins = failed_logins + 1, locked_until = ?
					WHERE username = ?`,
				lockUntil.UTC().Format(sqliteTimeLayout), username)
			return err
		}
		_, err := tx.Exec(
			`UPDATE user SET failed_logins = failed_logins + 1 WHERE username = ?`, username)
		return err
	})
}

// SetSuperuser grants or revokes the superuser flag.
func (s *Store) SetSuperuser(userID int64, superuser bool) error {
	res, err := s.db.Exec(`UPDATE user SET is_superuser = ? WHERE id = ?`, superuser, userID)
	if err != nil {
		return fmt.Errorf("set superuser: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMFASecret stores an enrollment secret and enables MFA for the user.
func (s *Store) SetMFASecret(userID int64, secret string) error {
	_, err := s.db.Exec(
		`UPDATE user SET mfa_secret = ?, mfa_enabled = 1 WHERE id = ?`, secret, userID)
	return err
}

// ListLoginAttempts returns the most recent login attempts, newest first.
func (s *Store) ListLoginAttempts(limit int) ([]LoginAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, username, successful, COALESCE(ip_address, ''), at_time
			FROM login_attempt ORDER BY at_time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	defer rows.Close()
	var out []LoginAttempt
	for rows.Next() {
		var a LoginAttempt
		var at string
		if err := rows.Scan(&a.ID, &a.Username, &a.Successful, &a.IPAddress, &at); err != nil {
			return nil, err
		}
		if t, err := time.Parse(sqliteTimeLayout, at); err == nil {
			a.Time = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateRole inserts a role.
func (s *Store) CreateRole(name string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO role (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("create role: %w", err)
	}
	return res.LastInsertId()
}

// ListRoles returns all roles.
func (s *Store) ListRoles() ([]Role, error) {
	rows, err := s.db.Query(`SELECT id, name FROM role ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRole removes a role by id.
func (s *Store) DeleteRole(id int64) error {
	res, err := s.db.Exec(`DELETE FROM role WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRole grants a role to a user.
func (s *Store) AssignRole(userID, roleID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_role (user_id, role_id) VALUES (?, ?)`, userID, roleID)
	return err
}

// CreateOrganization inserts an organization.
func (s *Store) CreateOrganization(name string, refLocationID *int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO organization (name, ref_location_id) VALUES (?, ?)`, name, refLocationID)
	if err != nil {
		return 0, fmt.Errorf("create organization: %w", err)
	}
	return res.LastInsertId()
}

// ListOrganizations returns all organizations.
func (s *Store) ListOrganizations() ([]Organization, error) {
	rows, err := s.db.Query(`SELECT id, name, ref_location_id FROM organization ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()
	var out []Organization
	for rows.Next() {
		var o Organization
		var ref sql.NullInt64
		if err := rows.Scan(&o.ID, &o.Name, &ref); err != nil {
			return nil, err
		}
		if ref.Valid {
			o.RefLocationID = &ref.Int64
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteOrganization removes an organization by id.
func (s *Store) DeleteOrganization(id int64) error {
	res, err := s.db.Exec(`DELETE FROM organization WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateQueryPermission inserts a query permission for a role.
func (s *Store) CreateQueryPermission(roleID int64, resource, conditions string) (int64, error) {
	if conditions == "" {
		conditions = "{}"
	}
	res, err := s.db.Exec(
		`INSERT INTO query_permission (role_id, resource, field_conditions) VALUES (?, ?, ?)`,
		roleID, resource, conditions)
	if err != nil {
		return 0, fmt.Errorf("create query permission: %w", err)
	}
	return res.LastInsertId()
}

// ListQueryPermissions returns all query permissions.
func (s *Store) ListQueryPermissions() ([]QueryPermission, error) {
	rows, err := s.db.Query(
		`SELECT id, role_id, resource, field_conditions FROM query_permission ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list query permissions: %w", err)
	}
	defer rows.Close()
	var out []QueryPermission
	for rows.Next() {
		var p QueryPermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Resource, &p.FieldConditions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteQueryPermission removes a query permission by id.
func (s *Store) DeleteQueryPermission(id int64) error {
	res, err := s.db.Exec(`DELETE FROM query_permission WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query permission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserQueryPermissions returns the permissions granted to a user through its
// roles, for embedding into access-token claims.
func (s *Store) UserQueryPermissions(userID int64) ([]QueryPermission, error) {
	rows, err := s.db.Query(`
		SELECT qp.id, qp.role_id, qp.resource, qp.field_conditions
		FROM query_permission qp
		JOIN user_role ur ON ur.role_id = qp.role_id
		WHERE ur.user_id = ?
		ORDER BY qp.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("user query permissions: %w", err)
	}
	defer rows.Close()
	var out []QueryPermission
	for rows.Next() {
		var p QueryPermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Resource, &p.FieldConditions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
