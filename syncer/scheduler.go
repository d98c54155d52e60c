package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paperbase-app/paperbase/types"
)

// Scheduler periodically syncs every connection that is due.
type Scheduler struct {
	orch        *Orchestrator
	connections types.ConnectionStore
	checkPeriod time.Duration
}

func NewScheduler(orch *Orchestrator, connections types.ConnectionStore, checkPeriod time.Duration) *Scheduler {
	if checkPeriod <= 0 {
		checkPeriod = 1 * time.Minute
	}
	return &Scheduler{
		orch:        orch,
		connections: connections,
		checkPeriod: checkPeriod,
	}
}

// Run loops until the context is cancelled, checking for due connections
// every checkPeriod.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.checkPeriod):
			results, err := s.orch.SyncAllDue(ctx)
			if err != nil {
				log.Printf("Failed to sync due connections: %s\n", err)
				continue
			}
			for id, res := range results {
				if res.Error != "" {
					log.Printf("Scheduled sync for %s failed: %s\n", id, res.Error)
				}
			}
		}
	}
}

// IsDue reports whether a connection should be auto-synced now.
func IsDue(conn *types.Connection, now time.Time) bool {
	if !conn.Active || !conn.AutoSync {
		return false
	}
	if conn.LastSyncAt == nil {
		return true
	}
	interval := conn.SyncInterval
	if interval <= 0 {
		interval = 15
	}
	return now.Sub(*conn.LastSyncAt) >= time.Duration(interval)*time.Minute
}

// SyncAllDue syncs every due connection concurrently and returns the result
// per connection id. Connections already mid-sync are skipped.
func (o *Orchestrator) SyncAllDue(ctx context.Context) (map[string]*types.SyncResult, error) {
	due, err := o.connections.DueForSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list due connections: %s", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := map[string]*types.SyncResult{}
	for i := range due {
		conn := due[i]
		if o.IsSyncing(conn.ID) {
			log.Printf("Sync already in progress for %s, skipping\n", conn.ID)
			continue
		}
		log.Printf("Sync due for connection %s (%s)\n", conn.ID, conn.Name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Sync(ctx, conn.ID)
			if err != nil {
				res = &types.SyncResult{Error: err.Error()}
			}
			mu.Lock()
			results[conn.ID] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results, nil
}
