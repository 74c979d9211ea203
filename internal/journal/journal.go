// Package journal records capture sessions in a SQLite database.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/livecam/internal/logger"
	_ "modernc.org/sqlite"
)

// Journal is a SQLite connection holding the session history.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at dbPath and runs migrations.
// The parent directory is created when missing.
func Open(dbPath string) (*Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc connections do not share an in-memory database
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:   db,
		path: dbPath,
	}

	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.WithComponent("journal").Debug().Str("path", dbPath).Msg("journal opened")
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}
