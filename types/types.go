package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Provider string

const (
	ProviderGoogleDrive Provider = "googledrive"
	ProviderDropbox     Provider = "dropbox"
	ProviderDriveShare  Provider = "driveshare"
)

// SyncStatus is the lifecycle state of a connection.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusError     SyncStatus = "error"
	SyncStatusPaused    SyncStatus = "paused"
)

// Outcome is the per-file result recorded in the sync log.
type Outcome string

const (
	OutcomeSynced    Outcome = "synced"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeError     Outcome = "error"
	OutcomeDuplicate Outcome = "duplicate"
)

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// Contains reports whether ext (compared case-insensitively, leading dot
// included) is in the list. An empty list allows everything.
func (l StringList) Contains(ext string) bool {
	if len(l) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, e := range l {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Connection links one remote cloud folder to the local document store.
type Connection struct {
	ID           string   `gorm:"primaryKey;size:36" json:"id"`
	Provider     Provider `gorm:"size:32;index" json:"provider"`
	Name         string   `gorm:"size:255" json:"name"`
	FolderRef    string   `gorm:"size:1000" json:"folder_ref"`
	CredentialID string   `gorm:"size:64" json:"credential_id"`

	Extensions    StringList `gorm:"type:text" json:"extensions"`
	MaxFileSizeMB int64      `json:"max_file_size_mb"`
	MaxDepth      int        `json:"max_depth"`
	SyncInterval  int        `json:"sync_interval_minutes"`
	AutoSync      bool       `json:"auto_sync"`
	AutoAnalyze   bool       `json:"auto_analyze"`
	TargetFolder  string     `gorm:"size:255" json:"target_folder"`

	Active        bool       `gorm:"index" json:"active"`
	Status        SyncStatus `gorm:"size:32" json:"status"`
	LastSyncAt    *time.Time `json:"last_sync_at"`
	LastSyncError string     `gorm:"type:text" json:"last_sync_error"`
	Cursor        string     `gorm:"size:500" json:"cursor"`
	FilesSynced   int64      `json:"files_synced"`
	BytesSynced   int64      `json:"bytes_synced"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// MaxFileSizeBytes returns the configured size cap, defaulting to 50 MB.
func (c *Connection) MaxFileSizeBytes() int64 {
	mb := c.MaxFileSizeMB
	if mb <= 0 {
		mb = 50
	}
	return mb * 1024 * 1024
}

// RemoteFile describes one listed file on the remote side. It is transient
// and never persisted on its own.
type RemoteFile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Hash     string    `json:"hash"`
	Modified time.Time `json:"modified"`
	MimeType string    `json:"mime_type"`
	IsFolder bool      `json:"is_folder"`
}

// Ext returns the lower-cased filename extension including the dot.
func (f RemoteFile) Ext() string {
	i := strings.LastIndex(f.Name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(f.Name[i:])
}

// SyncLogEntry is the append-only audit record of one file's sync attempt.
// Entries are write-once; an outcome is never edited after the fact.
type SyncLogEntry struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ConnectionID string     `gorm:"index;size:36" json:"connection_id"`
	RemoteID     string     `gorm:"index;size:255" json:"remote_id"`
	RemotePath   string     `gorm:"size:1000" json:"remote_path"`
	Hash         string     `gorm:"index;size:128" json:"hash"`
	Size         int64      `json:"size"`
	ModifiedAt   *time.Time `json:"modified_at"`
	DocumentID   string     `gorm:"size:36" json:"document_id"`
	Outcome      Outcome    `gorm:"size:32;index" json:"outcome"`
	Error        string     `gorm:"type:text" json:"error"`
	Filename     string     `gorm:"size:255" json:"filename"`
	MimeType     string     `gorm:"size:128" json:"mime_type"`
	SyncedAt     time.Time  `json:"synced_at"`
}

// Document is the minimal record created for an imported file.
type Document struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ConnectionID string    `gorm:"index;size:36" json:"connection_id"`
	Title        string    `gorm:"size:255" json:"title"`
	Filename     string    `gorm:"size:255" json:"filename"`
	FilePath     string    `gorm:"size:1000" json:"file_path"`
	Size         int64     `json:"size"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	Hash         string    `gorm:"index;size:128" json:"hash"`
	Folder       string    `gorm:"size:255" json:"folder"`
	SourcePath   string    `gorm:"size:1000" json:"source_path"`
	Fields       string    `gorm:"type:text" json:"fields"`
	CreatedAt    time.Time `json:"created_at"`
}

// Phase of a running sync, reported in every progress snapshot.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseScanning     Phase = "scanning"
	PhaseDownloading  Phase = "downloading"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

// Progress is one snapshot of a running sync. The orchestrator emits an
// ordered stream of these; the last snapshot carries the final result.
type Progress struct {
	Phase           Phase   `json:"phase"`
	CurrentFile     string  `json:"current_file"`
	CurrentFileSize int64   `json:"current_file_size"`
	FilesTotal      int     `json:"files_total"`
	FilesProcessed  int     `json:"files_processed"`
	FilesSynced     int     `json:"files_synced"`
	FilesSkipped    int     `json:"files_skipped"`
	FilesErrored    int     `json:"files_errored"`
	ProgressPercent int     `json:"progress_percent"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	// EstimatedRemainingSeconds is negative until enough files have been
	// processed to estimate.
	EstimatedRemainingSeconds float64 `json:"estimated_remaining_seconds"`

	BytesSynced int64    `json:"bytes_synced"`
	SyncedFiles []string `json:"synced_files"`
	Errors      []string `json:"errors"`
	Error       string   `json:"error"`
	Success     bool     `json:"success"`
}

// Result converts the final progress snapshot into a SyncResult.
func (p Progress) Result() *SyncResult {
	return &SyncResult{
		Success:      p.Success,
		FilesTotal:   p.FilesTotal,
		FilesSynced:  p.FilesSynced,
		FilesSkipped: p.FilesSkipped,
		FilesErrored: p.FilesErrored,
		BytesSynced:  p.BytesSynced,
		SyncedFiles:  p.SyncedFiles,
		Errors:       p.Errors,
		Error:        p.Error,
	}
}

// SyncResult is the structured outcome of one connection sync. It is always
// returned, even when nothing was imported.
type SyncResult struct {
	Success      bool     `json:"success"`
	FilesTotal   int      `json:"files_total"`
	FilesSynced  int      `json:"files_synced"`
	FilesSkipped int      `json:"files_skipped"`
	FilesErrored int      `json:"files_errored"`
	BytesSynced  int64    `json:"bytes_synced"`
	SyncedFiles  []string `json:"synced_files"`
	Errors       []string `json:"errors"`
	Error        string   `json:"error"`
}

// SyncStats aggregates sync-log rows for one connection or for all of them.
type SyncStats struct {
	TotalSynced    int64 `json:"total_synced"`
	TotalSkipped   int64 `json:"total_skipped"`
	TotalErrors    int64 `json:"total_errors"`
	TotalDuplicate int64 `json:"total_duplicates"`
	TotalBytes     int64 `json:"total_bytes"`
}

// Analysis is what the external content-analysis collaborator returns.
type Analysis struct {
	SuggestedFolder string            `json:"suggested_folder"`
	ExtractedFields map[string]string `json:"extracted_fields"`
}
