package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/paperbase-app/paperbase/types"
)

// SyncLogStore is the append-only per-file audit log. Because dedup checks
// run against these persisted rows rather than in-memory state, the
// at-most-once import guarantee holds across process restarts. It
// implements types.SyncLogStore.
type SyncLogStore struct {
	db *gorm.DB
}

// Append inserts a new entry. Entries are write-once; there is no update
// path and outcomes are never edited retroactively.
func (s *SyncLogStore) Append(ctx context.Context, entry *types.SyncLogEntry) error {
	entry.ID = 0
	if entry.SyncedAt.IsZero() {
		entry.SyncedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// resolvedOutcomes are the outcomes that make a remote identity "already
// handled": synced means imported, duplicate means its content already
// exists under another id.
var resolvedOutcomes = []types.Outcome{types.OutcomeSynced, types.OutcomeDuplicate}

// HasSynced checks the dedup index: remote id first, content hash second.
func (s *SyncLogStore) HasSynced(ctx context.Context, connectionID, remoteID, hash string) (bool, error) {
	if remoteID != "" {
		n, err := s.count(ctx, connectionID, "remote_id = ?", remoteID)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	if hash != "" {
		n, err := s.count(ctx, connectionID, "hash = ?", hash)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *SyncLogStore) count(ctx context.Context, connectionID, cond string, arg interface{}) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&types.SyncLogEntry{}).
		Where("connection_id = ?", connectionID).
		Where("outcome IN ?", resolvedOutcomes).
		Where(cond, arg).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("dedup lookup: %w", err)
	}
	return n, nil
}

// List returns the newest entries first.
func (s *SyncLogStore) List(ctx context.Context, connectionID string, limit int) ([]types.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("synced_at DESC, id DESC").Limit(limit)
	if connectionID != "" {
		q = q.Where("connection_id = ?", connectionID)
	}
	var entries []types.SyncLogEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}
	return entries, nil
}

// Stats aggregates outcome counts and synced bytes. An empty connectionID
// aggregates over all connections.
func (s *SyncLogStore) Stats(ctx context.Context, connectionID string) (*types.SyncStats, error) {
	stats := &types.SyncStats{}
	type row struct {
		Outcome types.Outcome
		N       int64
		Bytes   int64
	}
	q := s.db.WithContext(ctx).Model(&types.SyncLogEntry{}).
		Select("outcome, COUNT(*) AS n, SUM(size) AS bytes").
		Group("outcome")
	if connectionID != "" {
		q = q.Where("connection_id = ?", connectionID)
	}
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("sync stats: %w", err)
	}
	for _, r := range rows {
		switch r.Outcome {
		case types.OutcomeSynced:
			stats.TotalSynced = r.N
			stats.TotalBytes = r.Bytes
		case types.OutcomeSkipped:
			stats.TotalSkipped = r.N
		case types.OutcomeError:
			stats.TotalErrors = r.N
		case types.OutcomeDuplicate:
			stats.TotalDuplicate = r.N
		}
	}
	return stats, nil
}

// CountForConnection reports whether any history exists; used to decide
// deactivate-versus-delete.
func (s *SyncLogStore) CountForConnection(ctx context.Context, connectionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&types.SyncLogEntry{}).
		Where("connection_id = ?", connectionID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count sync log: %w", err)
	}
	return n, nil
}
