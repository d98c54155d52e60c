package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paperbase-app/paperbase/types"
	"github.com/paperbase-app/paperbase/util"
)

// DocumentStore writes file bytes under the upload dir and keeps a minimal
// document record per import. It implements types.DocumentStore.
type DocumentStore struct {
	db        *gorm.DB
	uploadDir string
}

// WriteFile persists bytes under a timestamped, sanitized name and returns
// the path as the storage ref.
func (s *DocumentStore) WriteFile(ctx context.Context, data []byte, suggestedName string) (string, error) {
	name := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), util.SanitizeFilename(suggestedName))
	path := filepath.Join(s.uploadDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// RemoveFile deletes a written file; used to roll back an import whose
// metadata persistence failed, so no partially-visible document remains.
func (s *DocumentStore) RemoveFile(ctx context.Context, storageRef string) error {
	if err := os.Remove(storageRef); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *DocumentStore) CreateDocument(ctx context.Context, doc *types.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return doc.ID, nil
}

// GetDocument is used by the API layer to serve imported documents.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	var doc types.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}
