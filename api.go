package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/paperbase-app/paperbase/keychain"
	"github.com/paperbase-app/paperbase/providers"
	"github.com/paperbase-app/paperbase/store"
	"github.com/paperbase-app/paperbase/syncer"
	"github.com/paperbase-app/paperbase/types"
)

type API struct {
	Syncer   *syncer.Orchestrator
	Store    *store.Store
	Keychain *keychain.Store
	Context  *BootContext
	Version  string
}

func (a *API) SetupRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/connections", a.connectionsList).Methods("GET")
	r.HandleFunc("/connections", a.connectionCreate).Methods("POST")
	r.HandleFunc("/connections/auth_complete", a.authComplete).Methods("GET")
	r.HandleFunc("/connections/{connection_id}", a.connectionGet).Methods("GET")
	r.HandleFunc("/connections/{connection_id}", a.connectionDelete).Methods("DELETE")
	r.HandleFunc("/connections/{connection_id}/auth_setup", a.connectionAuthSetup).Methods("GET")
	r.HandleFunc("/connections/{connection_id}/callback", a.handleAuthCallback).Methods("GET")
	r.HandleFunc("/connections/{connection_id}/sync", a.connectionSync).Methods("GET")
	r.HandleFunc("/connections/{connection_id}/resync", a.connectionResync).Methods("POST")
	r.HandleFunc("/connections/{connection_id}/logs", a.connectionLogs).Methods("GET")
	r.HandleFunc("/connections/{connection_id}/stats", a.connectionStats).Methods("GET")

	r.HandleFunc("/documents/{document_id}", a.documentGet).Methods("GET")

	r.HandleFunc("/stats", a.globalStats).Methods("GET")
	r.HandleFunc("/health", a.health).Methods("GET")
	r.HandleFunc("/sync/force", a.forceSync).Methods("GET")

	return r
}

type HealthResponse struct {
	BootState BootState `json:"boot_state"`
	Version   string    `json:"version"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(HealthResponse{
		BootState: a.Context.State,
		Version:   a.Version,
	})
}

type CreateConnectionRequest struct {
	Provider     string   `json:"provider"`
	Name         string   `json:"name"`
	FolderRef    string   `json:"folder_ref"`
	Extensions   []string `json:"extensions"`
	MaxFileSize  int64    `json:"max_file_size_mb"`
	MaxDepth     int      `json:"max_depth"`
	SyncInterval int      `json:"sync_interval_minutes"`
	AutoSync     bool     `json:"auto_sync"`
	AutoAnalyze  bool     `json:"auto_analyze"`
	TargetFolder string   `json:"target_folder"`
}

func (a *API) connectionCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, "Failed to decode request", http.StatusBadRequest)
		return
	}

	if !providers.IsProvider(req.Provider) {
		http.Error(w, "Unknown provider: "+req.Provider, http.StatusBadRequest)
		return
	}
	if req.FolderRef == "" {
		http.Error(w, "No folder reference provided", http.StatusBadRequest)
		return
	}

	folderRef := req.FolderRef
	if types.Provider(req.Provider) == types.ProviderDriveShare {
		// Accept full share URLs and reduce them to the folder id.
		if id := providers.DriveFolderID(folderRef); id != "" {
			folderRef = id
		}
	}

	conn := &types.Connection{
		Provider:      types.Provider(req.Provider),
		Name:          req.Name,
		FolderRef:     folderRef,
		Extensions:    types.StringList(req.Extensions),
		MaxFileSizeMB: req.MaxFileSize,
		MaxDepth:      req.MaxDepth,
		SyncInterval:  req.SyncInterval,
		AutoSync:      req.AutoSync,
		AutoAnalyze:   req.AutoAnalyze,
		TargetFolder:  req.TargetFolder,
	}
	err = a.Store.Connections().Create(r.Context(), conn)
	if err != nil {
		log.Printf("Failed to create connection: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to create connection: " + err.Error()))
		return
	}
	log.Printf("Created %s connection %s", conn.Provider, conn.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conn)
}

func (a *API) connectionsList(w http.ResponseWriter, r *http.Request) {
	fetchAll := r.URL.Query().Get("all") == "true"
	conns, err := a.Store.Connections().List(r.Context(), !fetchAll)
	if err != nil {
		log.Printf("Failed to list connections: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to list connections: " + err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conns)
}

func (a *API) connectionGet(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conn)
}

// connectionDelete deactivates a connection that already has sync history so
// its dedup log survives, and hard-deletes one that never synced. ?purge=true
// forces a hard delete either way.
func (a *API) connectionDelete(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}

	purge := r.URL.Query().Get("purge") == "true"
	entries, err := a.Store.SyncLog().CountForConnection(r.Context(), conn.ID)
	if err != nil {
		log.Printf("Failed to count sync log entries: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to count sync log entries: " + err.Error()))
		return
	}

	if entries > 0 && !purge {
		err = a.Store.Connections().Deactivate(r.Context(), conn.ID)
	} else {
		if kerr := a.Keychain.Delete(conn); kerr != nil {
			log.Printf("Failed to remove credentials for %s: %s", conn.ID, kerr)
		}
		err = a.Store.Connections().Delete(r.Context(), conn.ID)
	}
	if err != nil {
		log.Printf("Failed to remove connection: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to remove connection: " + err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) connectionAuthSetup(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}

	cfg, ok := a.Keychain.Config(conn.Provider)
	if !ok {
		http.Error(w, "Provider does not use OAuth: "+string(conn.Provider), http.StatusBadRequest)
		return
	}

	url := cfg.AuthCodeURL(conn.ID, providers.AuthCodeOptions(conn.Provider)...)
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	queryParts := r.URL.Query()
	code := queryParts.Get("code")
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("No code in request"))
		return
	}
	if errStr := queryParts.Get("error"); errStr != "" {
		log.Printf("Error in OAuth callback: %s\n", errStr)
	}

	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}
	if state := queryParts.Get("state"); state != "" && state != conn.ID {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("State does not match connection ID"))
		return
	}

	cfg, ok := a.Keychain.Config(conn.Provider)
	if !ok {
		http.Error(w, "Provider does not use OAuth: "+string(conn.Provider), http.StatusBadRequest)
		return
	}

	tok, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("Failed to exchange auth code: %s\n", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to exchange auth code: " + err.Error()))
		return
	}
	err = a.Keychain.Save(conn, tok)
	if err != nil {
		log.Printf("Failed to store token: %s\n", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to store token: " + err.Error()))
		return
	}

	w.Write([]byte("Authentication is complete, you may close this tab and return to the app"))
}

func (a *API) authComplete(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Auth complete"))
}

// connectionSync runs a sync and streams progress snapshots as
// newline-delimited JSON. The last line carries the final result.
func (a *API) connectionSync(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	connectionID, ok := vars["connection_id"]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("No connection ID provided"))
		return
	}

	ch, err := a.Syncer.SyncWithProgress(r.Context(), connectionID)
	if err != nil {
		log.Printf("Failed to start sync: %s", err)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("Failed to start sync: " + err.Error()))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		// Drain without streaming and return only the final snapshot.
		var last types.Progress
		for p := range ch {
			last = p
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(last)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	for p := range ch {
		json.NewEncoder(w).Encode(p)
		flusher.Flush()
	}
}

func (a *API) connectionResync(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}
	if a.Syncer.IsSyncing(conn.ID) {
		http.Error(w, "Sync already in progress", http.StatusConflict)
		return
	}

	err := a.Store.Connections().ResetCursor(r.Context(), conn.ID)
	if err != nil {
		log.Printf("Failed to reset cursor: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to reset cursor: " + err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) connectionLogs(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	entries, err := a.Store.SyncLog().List(r.Context(), conn.ID, limit)
	if err != nil {
		log.Printf("Failed to list sync log: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to list sync log: " + err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (a *API) connectionStats(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.loadConnection(w, r)
	if !ok {
		return
	}

	stats, err := a.Store.SyncLog().Stats(r.Context(), conn.ID)
	if err != nil {
		log.Printf("Failed to compute stats: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to compute stats: " + err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (a *API) documentGet(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["document_id"]
	doc, err := a.Store.Documents().GetDocument(r.Context(), documentID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(fmt.Sprintf("Unknown document ID %s", documentID)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (a *API) globalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Store.SyncLog().Stats(r.Context(), "")
	if err != nil {
		log.Printf("Failed to compute stats: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to compute stats: " + err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (a *API) forceSync(w http.ResponseWriter, r *http.Request) {
	results, err := a.Syncer.SyncAllDue(r.Context())
	if err != nil {
		log.Printf("Failed to sync: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to sync: " + err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (a *API) loadConnection(w http.ResponseWriter, r *http.Request) (*types.Connection, bool) {
	vars := mux.Vars(r)
	connectionID, ok := vars["connection_id"]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("No connection ID provided"))
		return nil, false
	}

	conn, err := a.Store.Connections().Get(r.Context(), connectionID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(fmt.Sprintf("Unknown connection ID %s", connectionID)))
		return nil, false
	}
	return conn, true
}
