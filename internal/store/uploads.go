package store

import (
	"fmt"
	"os"
	"time"
)

// TempUpload records an attachment uploaded ahead of an email send.
type TempUpload struct {
	ID         int64
	Path       string
	Filename   string
	UploadedAt time.Time
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// AddTempUpload records a temporary upload.
func (s *Store) AddTempUpload(path, filename string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO temp_upload (path, filename) VALUES (?, ?)`, path, filename)
	if err != nil {
		return 0, fmt.Errorf("insert temp upload: %w", err)
	}
	return res.LastInsertId()
}

// PurgeTempUploads deletes temp uploads older than maxAge, removing both the
// database rows and the files on disk. Returns the number purged. Missing
// files are not an error; the row is still removed.
func (s *Store) PurgeTempUploads(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(sqliteTimeLayout)

	rows, err := s.db.Query(
		`SELECT id, path FROM temp_upload WHERE uploaded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select stale uploads: %w", err)
	}
	type stale struct {
		id   int64
		path string
	}
	var victims []stale
	for rows.Next() {
		var v stale
		if err := rows.Scan(&v.id, &v.path); err != nil {
			rows.Close()
			return 0, err
		}
		victims = append(victims, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	purged := 0
	for _, v := range victims {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM temp_upload WHERE id = ?`, v.id); err != nil {
			return purged, fmt.Errorf("delete temp upload %d: %w", v.id, err)
		}
		purged++
	}
	return purged, nil
}

// PruneLoginAttempts deletes login attempts older than the retention window.
func (s *Store) PruneLoginAttempts(keep time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-keep).Format(sqliteTimeLayout)
	res, err := s.db.Exec(`DELETE FROM login_attempt WHERE at_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune login attempts: %w", err)
	}
	return res.RowsAffected()
}
