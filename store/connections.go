package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paperbase-app/paperbase/types"
)

// ErrNotFound is returned for lookups of unknown or deleted connections.
var ErrNotFound = errors.New("not found")

// ConnectionStore is the registry of configured connections. It implements
// types.ConnectionStore.
type ConnectionStore struct {
	db *gorm.DB
}

func (s *ConnectionStore) Create(ctx context.Context, conn *types.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if conn.Status == "" {
		conn.Status = types.SyncStatusPending
	}
	conn.Active = true
	if err := s.db.WithContext(ctx).Create(conn).Error; err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (s *ConnectionStore) Get(ctx context.Context, id string) (*types.Connection, error) {
	var conn types.Connection
	err := s.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

func (s *ConnectionStore) List(ctx context.Context, activeOnly bool) ([]types.Connection, error) {
	q := s.db.WithContext(ctx).Order("created_at")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var conns []types.Connection
	if err := q.Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

func (s *ConnectionStore) Update(ctx context.Context, conn *types.Connection) error {
	if err := s.db.WithContext(ctx).Save(conn).Error; err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	return nil
}

// SetStatus updates only the lifecycle fields, leaving configuration alone.
func (s *ConnectionStore) SetStatus(ctx context.Context, id string, status types.SyncStatus, lastError string) error {
	res := s.db.WithContext(ctx).Model(&types.Connection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"last_sync_error": lastError,
		})
	if res.Error != nil {
		return fmt.Errorf("set status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate pauses a connection without touching its history. Connections
// with sync-log history are never hard-deleted.
func (s *ConnectionStore) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&types.Connection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"active": false,
			"status": types.SyncStatusPaused,
		})
	if res.Error != nil {
		return fmt.Errorf("deactivate connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a connection. Callers that require the invariant
// "never hard-delete while history exists" should use Deactivate when the
// sync log is non-empty.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&types.Connection{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete connection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DueForSync returns active auto-sync connections whose interval elapsed.
func (s *ConnectionStore) DueForSync(ctx context.Context) ([]types.Connection, error) {
	conns, err := s.List(ctx, true)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var due []types.Connection
	for _, c := range conns {
		if !c.AutoSync {
			continue
		}
		if c.LastSyncAt == nil {
			due = append(due, c)
			continue
		}
		interval := c.SyncInterval
		if interval <= 0 {
			interval = 15
		}
		if now.Sub(*c.LastSyncAt) >= time.Duration(interval)*time.Minute {
			due = append(due, c)
		}
	}
	return due, nil
}

// AdvanceCursor persists a new delta cursor. Cursors are monotonic: an
// empty value never overwrites a stored one; only ResetCursor rolls back.
func (s *ConnectionStore) AdvanceCursor(ctx context.Context, id, cursor string) error {
	if cursor == "" {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&types.Connection{}).
		Where("id = ?", id).
		Update("cursor", cursor)
	if res.Error != nil {
		return fmt.Errorf("advance cursor: %w", res.Error)
	}
	return nil
}

// ResetCursor clears the delta cursor for an explicit full resync.
func (s *ConnectionStore) ResetCursor(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&types.Connection{}).
		Where("id = ?", id).
		Update("cursor", "")
	if res.Error != nil {
		return fmt.Errorf("reset cursor: %w", res.Error)
	}
	return nil
}

// RecordSyncSuccess stamps the completion state and accumulates counters.
func (s *ConnectionStore) RecordSyncSuccess(ctx context.Context, id string, filesSynced, bytesSynced int64) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&types.Connection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          types.SyncStatusCompleted,
			"last_sync_at":    now,
			"last_sync_error": "",
			"files_synced":    gorm.Expr("files_synced + ?", filesSynced),
			"bytes_synced":    gorm.Expr("bytes_synced + ?", bytesSynced),
		})
	if res.Error != nil {
		return fmt.Errorf("record sync success: %w", res.Error)
	}
	return nil
}
