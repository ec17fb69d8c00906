// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"mangaverse/pkg/database"
)

func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateUser inserts a user together with its profile and returns the user id.
func CreateUser(t testing.TB, db *sql.DB, id, username string, admin bool) string {
	t.Helper()

	if _, err := db.Exec(`
		INSERT INTO users (id, username, email, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, 'x', ?, CURRENT_TIMESTAMP)
	`, id, username, username+"@example.com", admin); err != nil {
		t.Fatalf("insert user %s: %v", username, err)
	}
	if _, err := db.Exec(`INSERT INTO profiles (user_id) VALUES (?)`, id); err != nil {
		t.Fatalf("insert profile %s: %v", username, err)
	}
	return id
}
