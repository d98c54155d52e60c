package types

import (
	"context"

	"golang.org/x/oauth2"
)

// Listing is one page of a folder listing.
type Listing struct {
	Files      []RemoteFile
	NextCursor string
	HasMore    bool
}

// ProviderAdapter is the per-provider implementation of "list folder" and
// "download file". Adapters make no implicit retries; retry policy lives in
// the orchestrator. Failures carry an ErrorKind via SyncError.
type ProviderAdapter interface {
	Provider() Provider

	// ListFolder returns one page of entries for folderRef. cursor is the
	// provider-opaque continuation token; empty means start from scratch.
	ListFolder(ctx context.Context, folderRef, cursor string) (*Listing, error)

	// Download fetches the file bytes. Provider-specific two-step flows
	// (large-file confirmations) are handled behind this single contract.
	Download(ctx context.Context, file RemoteFile) ([]byte, error)
}

// CredentialStore holds per-connection OAuth tokens and refreshes them on
// demand. It is scoped state injected into the orchestrator, never ambient
// process-global state.
type CredentialStore interface {
	Token(ctx context.Context, conn *Connection) (*oauth2.Token, error)
	Refresh(ctx context.Context, conn *Connection) (*oauth2.Token, error)
	Save(conn *Connection, tok *oauth2.Token) error
	Delete(conn *Connection) error
}

// ConnectionStore persists connection configuration and lifecycle state.
type ConnectionStore interface {
	Create(ctx context.Context, conn *Connection) error
	Get(ctx context.Context, id string) (*Connection, error)
	List(ctx context.Context, activeOnly bool) ([]Connection, error)
	Update(ctx context.Context, conn *Connection) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	// SetStatus updates only the lifecycle state and last error message.
	SetStatus(ctx context.Context, id string, status SyncStatus, lastError string) error

	// AdvanceCursor persists a new delta cursor; cursors are monotonic and
	// an empty value is a no-op. ResetCursor is the explicit rollback for a
	// user-triggered full resync.
	AdvanceCursor(ctx context.Context, id, cursor string) error
	ResetCursor(ctx context.Context, id string) error

	// RecordSyncSuccess stamps completion and accumulates the counters.
	RecordSyncSuccess(ctx context.Context, id string, filesSynced, bytesSynced int64) error

	// DueForSync returns active auto-sync connections whose interval has
	// elapsed since their last sync.
	DueForSync(ctx context.Context) ([]Connection, error)
}

// SyncLogStore is the append-only sync log. It doubles as the dedup index:
// HasSynced is checked against persisted rows, not in-memory state, so the
// at-most-once import guarantee survives process restarts.
type SyncLogStore interface {
	Append(ctx context.Context, entry *SyncLogEntry) error

	// HasSynced reports whether this connection already has a synced (or
	// duplicate-resolved) entry for the remote id or, when remoteID yields
	// no match, for the content hash.
	HasSynced(ctx context.Context, connectionID, remoteID, hash string) (bool, error)

	List(ctx context.Context, connectionID string, limit int) ([]SyncLogEntry, error)
	Stats(ctx context.Context, connectionID string) (*SyncStats, error)
}

// DocumentStore is the external document persistence collaborator.
type DocumentStore interface {
	// WriteFile persists raw bytes and returns an opaque storage ref.
	WriteFile(ctx context.Context, data []byte, suggestedName string) (string, error)

	// RemoveFile rolls back a WriteFile whose metadata persistence failed.
	RemoveFile(ctx context.Context, storageRef string) error

	CreateDocument(ctx context.Context, doc *Document) (string, error)
}

// Analyzer is the optional external content-analysis collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, text, sourcePathHint string) (*Analysis, error)
}
