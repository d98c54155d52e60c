package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paperbase-app/paperbase/importer"
	"github.com/paperbase-app/paperbase/providers"
	"github.com/paperbase-app/paperbase/types"
)

// AdapterFactory builds the provider adapter for a connection.
type AdapterFactory interface {
	Adapter(conn *types.Connection) (types.ProviderAdapter, error)
}

// Orchestrator runs syncs for connections. At most one sync per connection
// may be in flight; concurrent syncs of different connections are fine.
type Orchestrator struct {
	connections types.ConnectionStore
	logs        types.SyncLogStore
	creds       types.CredentialStore
	adapters    AdapterFactory
	pipeline    *importer.Pipeline

	mu      sync.Mutex
	running map[string]struct{}
}

func New(connections types.ConnectionStore, logs types.SyncLogStore, creds types.CredentialStore, adapters AdapterFactory, pipeline *importer.Pipeline) *Orchestrator {
	return &Orchestrator{
		connections: connections,
		logs:        logs,
		creds:       creds,
		adapters:    adapters,
		pipeline:    pipeline,
		running:     map[string]struct{}{},
	}
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[id]; ok {
		return false
	}
	o.running[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, id)
}

// IsSyncing reports whether a sync for the connection is currently running.
func (o *Orchestrator) IsSyncing(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[id]
	return ok
}

// Sync runs a full sync to completion and returns the aggregate result.
func (o *Orchestrator) Sync(ctx context.Context, connectionID string) (*types.SyncResult, error) {
	ch, err := o.SyncWithProgress(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	var last types.Progress
	for p := range ch {
		last = p
	}
	return last.Result(), nil
}

// SyncWithProgress starts a sync and returns a channel of progress
// snapshots. The channel is closed when the sync finishes; the last
// snapshot carries the final result. Snapshots are emitted in order and
// counters never go backwards.
func (o *Orchestrator) SyncWithProgress(ctx context.Context, connectionID string) (<-chan types.Progress, error) {
	conn, err := o.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection %s: %s", connectionID, err)
	}
	if !conn.Active {
		return nil, fmt.Errorf("connection %s is deactivated", connectionID)
	}
	if !o.acquire(conn.ID) {
		return nil, fmt.Errorf("sync already in progress for connection %s", conn.ID)
	}

	ch := make(chan types.Progress, 16)
	go func() {
		defer o.release(conn.ID)
		defer close(ch)
		o.run(ctx, conn, ch)
	}()
	return ch, nil
}

func (o *Orchestrator) run(ctx context.Context, conn *types.Connection, ch chan<- types.Progress) {
	start := time.Now()
	prog := types.Progress{
		Phase:                     types.PhaseInitializing,
		EstimatedRemainingSeconds: -1,
		SyncedFiles:               []string{},
		Errors:                    []string{},
	}
	emit := func() {
		prog.ElapsedSeconds = time.Since(start).Seconds()
		snap := prog
		snap.SyncedFiles = append([]string{}, prog.SyncedFiles...)
		snap.Errors = append([]string{}, prog.Errors...)
		ch <- snap
	}
	fail := func(err error) {
		msg := err.Error()
		log.Printf("Sync failed for connection %s: %s\n", conn.ID, msg)
		if serr := o.connections.SetStatus(ctx, conn.ID, types.SyncStatusError, msg); serr != nil {
			log.Printf("Failed to record error status for %s: %s\n", conn.ID, serr)
		}
		prog.Phase = types.PhaseError
		prog.Error = msg
		prog.Success = false
		emit()
	}

	emit()
	if err := o.connections.SetStatus(ctx, conn.ID, types.SyncStatusSyncing, ""); err != nil {
		fail(fmt.Errorf("failed to mark connection syncing: %s", err))
		return
	}

	adapter, err := o.adapters.Adapter(conn)
	if err != nil {
		fail(err)
		return
	}

	prog.Phase = types.PhaseScanning
	emit()

	collector := providers.NewCollector(adapter, conn.MaxDepth)
	files, nextCursor, err := collector.Collect(ctx, conn.FolderRef, conn.Cursor)
	if types.IsKind(err, types.KindAuthExpired) {
		log.Printf("Token expired for connection %s, refreshing\n", conn.ID)
		if _, rerr := o.creds.Refresh(ctx, conn); rerr == nil {
			files, nextCursor, err = collector.Collect(ctx, conn.FolderRef, conn.Cursor)
		}
	}
	if err != nil {
		fail(err)
		return
	}
	log.Printf("Connection %s: %d files listed\n", conn.ID, len(files))

	prog.Phase = types.PhaseDownloading
	prog.FilesTotal = len(files)
	emit()

	cancelled := false
	for i, f := range files {
		// Re-read the connection before every download so that
		// deactivation from another goroutine stops the sync between
		// files, never mid-file.
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		cur, err := o.connections.Get(ctx, conn.ID)
		if err == nil && !cur.Active {
			cancelled = true
			break
		}

		prog.CurrentFile = f.Name
		prog.CurrentFileSize = f.Size
		prog.FilesProcessed = i
		if len(files) > 0 {
			prog.ProgressPercent = i * 100 / len(files)
		}
		if i > 0 {
			perFile := time.Since(start).Seconds() / float64(i)
			prog.EstimatedRemainingSeconds = perFile * float64(len(files)-i)
		}
		emit()

		outcome, size, perr := o.processFile(ctx, conn, adapter, f)
		switch outcome {
		case types.OutcomeSynced:
			prog.FilesSynced++
			prog.BytesSynced += size
			prog.SyncedFiles = append(prog.SyncedFiles, f.Name)
		case types.OutcomeSkipped, types.OutcomeDuplicate:
			prog.FilesSkipped++
		case types.OutcomeError:
			prog.FilesErrored++
			prog.Errors = append(prog.Errors, fmt.Sprintf("%s: %s", f.Name, perr))
			// Dead credentials or throttling hit every remaining file;
			// stop instead of burning through the rest of the listing.
			if types.IsConnectionFatal(perr) {
				fail(perr)
				return
			}
		}
	}

	prog.CurrentFile = ""
	prog.CurrentFileSize = 0
	prog.FilesProcessed = prog.FilesSynced + prog.FilesSkipped + prog.FilesErrored
	prog.EstimatedRemainingSeconds = 0

	if cancelled {
		log.Printf("Sync cancelled for connection %s after %d files\n", conn.ID, prog.FilesProcessed)
		if err := o.connections.SetStatus(ctx, conn.ID, types.SyncStatusPaused, "sync cancelled"); err != nil {
			log.Printf("Failed to record paused status for %s: %s\n", conn.ID, err)
		}
		prog.Phase = types.PhaseError
		prog.Error = "sync cancelled"
		prog.Success = false
		emit()
		return
	}

	prog.ProgressPercent = 100

	// Per-file failures do not fail the connection. The cursor only moves
	// once the whole listing has been walked, so a cancelled run rescans.
	if nextCursor != "" {
		if err := o.connections.AdvanceCursor(ctx, conn.ID, nextCursor); err != nil {
			log.Printf("Failed to advance cursor for %s: %s\n", conn.ID, err)
		}
	}
	if err := o.connections.RecordSyncSuccess(ctx, conn.ID, int64(prog.FilesSynced), prog.BytesSynced); err != nil {
		log.Printf("Failed to record sync completion for %s: %s\n", conn.ID, err)
	}

	prog.Phase = types.PhaseCompleted
	prog.Success = prog.FilesErrored == 0
	emit()
	log.Printf("Sync complete for connection %s: %d synced, %d skipped, %d errors\n",
		conn.ID, prog.FilesSynced, prog.FilesSkipped, prog.FilesErrored)
}

// processFile syncs a single file and returns its outcome, the number of
// bytes imported and the error for the error outcome. Filters and the
// id-based dedup check run before any bytes are transferred.
func (o *Orchestrator) processFile(ctx context.Context, conn *types.Connection, adapter types.ProviderAdapter, f types.RemoteFile) (types.Outcome, int64, error) {
	if !conn.Extensions.Contains(f.Ext()) {
		return types.OutcomeSkipped, 0, nil
	}
	if f.Size > 0 && f.Size > conn.MaxFileSizeBytes() {
		log.Printf("Skipping %s: %d bytes exceeds limit\n", f.Name, f.Size)
		return types.OutcomeSkipped, 0, nil
	}

	seen, err := o.logs.HasSynced(ctx, conn.ID, f.ID, f.Hash)
	if err != nil {
		o.appendLog(ctx, conn, f, "", "", 0, types.OutcomeError, fmt.Sprintf("dedup lookup failed: %s", err))
		return types.OutcomeError, 0, err
	}
	if seen {
		return types.OutcomeSkipped, 0, nil
	}

	data, err := adapter.Download(ctx, f)
	if types.IsKind(err, types.KindAuthExpired) {
		if _, rerr := o.creds.Refresh(ctx, conn); rerr == nil {
			data, err = adapter.Download(ctx, f)
		}
	}
	if err != nil {
		o.appendLog(ctx, conn, f, f.Hash, "", 0, types.OutcomeError, err.Error())
		return types.OutcomeError, 0, err
	}

	if int64(len(data)) > conn.MaxFileSizeBytes() {
		// Listings without a size report 0 and only reveal the real
		// size after download.
		log.Printf("Skipping %s after download: %d bytes exceeds limit\n", f.Name, len(data))
		return types.OutcomeSkipped, 0, nil
	}

	contentHash := f.Hash
	if contentHash == "" {
		contentHash = hashBytes(data)
	}
	// Second dedup pass with the content hash catches renamed copies and
	// providers whose listings carry no checksum.
	seen, err = o.logs.HasSynced(ctx, conn.ID, "", contentHash)
	if err == nil && seen {
		o.appendLog(ctx, conn, f, contentHash, "", int64(len(data)), types.OutcomeDuplicate, "")
		return types.OutcomeDuplicate, 0, nil
	}

	doc, err := o.pipeline.Import(ctx, conn, f, data, contentHash)
	if err != nil {
		o.appendLog(ctx, conn, f, contentHash, "", int64(len(data)), types.OutcomeError, err.Error())
		return types.OutcomeError, 0, err
	}

	o.appendLog(ctx, conn, f, contentHash, doc.ID, int64(len(data)), types.OutcomeSynced, "")
	return types.OutcomeSynced, int64(len(data)), nil
}

func (o *Orchestrator) appendLog(ctx context.Context, conn *types.Connection, f types.RemoteFile, hash, docID string, size int64, outcome types.Outcome, errMsg string) {
	entry := &types.SyncLogEntry{
		ConnectionID: conn.ID,
		RemoteID:     f.ID,
		RemotePath:   f.Path,
		Hash:         hash,
		Size:         size,
		DocumentID:   docID,
		Outcome:      outcome,
		Error:        errMsg,
		Filename:     f.Name,
		MimeType:     f.MimeType,
	}
	if !f.Modified.IsZero() {
		mod := f.Modified
		entry.ModifiedAt = &mod
	}
	if err := o.logs.Append(ctx, entry); err != nil {
		log.Printf("Failed to append sync log for %s/%s: %s\n", conn.ID, f.Name, err)
	}
}

func hashBytes(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
