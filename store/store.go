// Package store persists connections, the append-only sync log and imported
// documents in a local SQLite database.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/paperbase-app/paperbase/types"
)

// Store wraps the database handle and the on-disk upload directory.
type Store struct {
	db        *gorm.DB
	uploadDir string
}

// Open creates (or opens) the database under dataDir and migrates the
// schema. Uploaded file bytes live under dataDir/uploads.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("empty data dir")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "paperbase.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&types.Connection{},
		&types.SyncLogEntry{},
		&types.Document{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	uploadDir := filepath.Join(dataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir upload dir: %w", err)
	}

	return &Store{db: db, uploadDir: uploadDir}, nil
}

// DB exposes the raw handle for the sub-stores.
func (s *Store) DB() *gorm.DB { return s.db }

// Connections returns the connection registry.
func (s *Store) Connections() *ConnectionStore {
	return &ConnectionStore{db: s.db}
}

// SyncLog returns the append-only sync log (the dedup index).
func (s *Store) SyncLog() *SyncLogStore {
	return &SyncLogStore{db: s.db}
}

// Documents returns the document store writing under the upload dir.
func (s *Store) Documents() *DocumentStore {
	return &DocumentStore{db: s.db, uploadDir: s.uploadDir}
}
