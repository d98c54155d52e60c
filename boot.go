package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/paperbase-app/paperbase/importer"
	"github.com/paperbase-app/paperbase/keychain"
	"github.com/paperbase-app/paperbase/providers"
	"github.com/paperbase-app/paperbase/store"
	"github.com/paperbase-app/paperbase/syncer"
)

const (
	dataDirName   = ".paperbase"
	masterLogPath = ".paperbase/logs/full.log"
)

type BootState string

const (
	BootStateStarted = "started"
	BootStateOnboard = "onboard" // Can add connections
	BootStateSyncing = "syncing" // Scheduler running, connections syncing
)

type BootContext struct {
	context.Context
	Timers
	State     BootState
	Store     *store.Store
	Keychain  *keychain.Store
	Syncer    *syncer.Orchestrator
	Scheduler *syncer.Scheduler
	Logfile   *os.File
}

type Timers struct {
	StartTime   time.Time
	OnboardTime time.Time
	SyncingTime time.Time
}

func NewBootContext(ctx context.Context) *BootContext {
	return &BootContext{
		Context: ctx,
		Timers: Timers{
			StartTime: time.Now(),
		},
		State: BootStateStarted,
	}
}

func BootOnboard(creds BuildCredentials) (*BootContext, error) {
	logPath, err := GetMasterLogPath()
	if err != nil {
		log.Fatalf("Failed to get master log path: %s", err)
	}

	err = os.MkdirAll(filepath.Dir(logPath), 0755)
	if err != nil && !os.IsExist(err) {
		log.Fatalf("Failed to create log directory: %s", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %s", err)
	}
	log.SetOutput(logFile)

	// Main context attached to application runtime, everything in the
	// background should terminate when cancelled
	ctx, cancel := context.WithCancel(context.Background())

	bootCtx := NewBootContext(ctx)
	bootCtx.Logfile = logFile

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	dataDir, err := GetDataDir()
	if err != nil {
		log.Fatalf("Failed to get data directory: %s", err)
	}
	st, err := store.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %s", err)
	}
	bootCtx.Store = st

	bootCtx.Keychain = keychain.NewStore(providers.OAuthConfigs(
		creds.GoogleClientID,
		creds.GoogleClientSecret,
		creds.DropboxClientID,
		creds.DropboxClientSecret,
		creds.OAuthRedirectURL,
	))

	factory := providers.NewFactory(bootCtx.Keychain, providers.Options{
		GoogleAPIKey: creds.GoogleAPIKey,
	})
	pipeline := importer.NewPipeline(st.Documents(), nil)
	orch := syncer.New(st.Connections(), st.SyncLog(), bootCtx.Keychain, factory, pipeline)
	bootCtx.Syncer = orch
	bootCtx.Scheduler = syncer.NewScheduler(orch, st.Connections(), 1*time.Minute)

	api := API{
		Syncer:   orch,
		Store:    st,
		Keychain: bootCtx.Keychain,
		Context:  bootCtx,
		Version:  Version,
	}
	router := api.SetupRouter()

	// CORS for the desktop frontend in development
	corsHeaders := handlers.CORS(
		handlers.AllowedOrigins([]string{"http://localhost:3000"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	handler := corsHeaders(handlers.LoggingHandler(logFile, router))

	server := http.Server{
		Addr:    ListenAddr,
		Handler: handler,
	}

	go func() {
		select {
		case <-sigChan:
			log.Print("Shutdown signal received")
			cancel()
			server.Close()
		case <-ctx.Done():
			server.Close()
		}
	}()

	go func() {
		log.Printf("Starting server on %s", ListenAddr)
		log.Fatal(server.ListenAndServe())
	}()

	bootCtx.State = BootStateOnboard
	bootCtx.OnboardTime = time.Now()
	return bootCtx, nil
}

func BootSyncing(bootCtx *BootContext) error {
	go bootCtx.Scheduler.Run(bootCtx)

	bootCtx.State = BootStateSyncing
	bootCtx.SyncingTime = time.Now()
	return nil
}

func GetMasterLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, masterLogPath), nil
}

func GetDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dataDirName), nil
}
