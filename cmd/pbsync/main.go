package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/urfave/cli/v2"

	"github.com/paperbase-app/paperbase/importer"
	"github.com/paperbase-app/paperbase/keychain"
	"github.com/paperbase-app/paperbase/providers"
	"github.com/paperbase-app/paperbase/store"
	"github.com/paperbase-app/paperbase/syncer"
	"github.com/paperbase-app/paperbase/types"
	"github.com/paperbase-app/paperbase/util"
)

var version = "dev"

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "pbsync",
		Usage:                "Sync cloud folders into the local document library",
		Version:              version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Data directory (defaults to ~/.paperbase)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a new sync connection",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "provider",
						Usage:    "Provider: googledrive, dropbox or driveshare",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "folder",
						Usage:    "Folder id, path or share link to sync",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name for the connection",
					},
					&cli.StringFlag{
						Name:  "extensions",
						Usage: "Comma-separated extension filter, e.g. .pdf,.docx (empty syncs everything)",
					},
					&cli.Int64Flag{
						Name:  "max-size",
						Usage: "Maximum file size in MB",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "max-depth",
						Usage: "Maximum folder recursion depth",
						Value: providers.DefaultMaxDepth,
					},
					&cli.IntFlag{
						Name:  "interval",
						Usage: "Auto-sync interval in minutes",
						Value: 15,
					},
					&cli.BoolFlag{
						Name:  "auto-sync",
						Usage: "Sync automatically on the interval",
					},
					&cli.StringFlag{
						Name:  "target",
						Usage: "Library folder imported documents are placed in",
					},
				},
				Action: addConnection,
			},
			{
				Name:   "list",
				Usage:  "List connections",
				Action: listConnections,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include deactivated connections",
					},
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a connection (deactivates when sync history exists)",
				ArgsUsage: "<connection-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "purge",
						Usage: "Hard-delete even when sync history exists",
					},
				},
				Action: removeConnection,
			},
			{
				Name:      "sync",
				Usage:     "Sync one connection now",
				ArgsUsage: "<connection-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Reset the delta cursor and rescan the whole folder",
					},
				},
				Action: runSync,
			},
			{
				Name:   "sync-all",
				Usage:  "Sync every connection that is due",
				Action: runSyncAll,
			},
			{
				Name:      "logs",
				Usage:     "Show the sync log for a connection",
				ArgsUsage: "<connection-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum entries to show",
						Value: 50,
					},
				},
				Action: showLogs,
			},
			{
				Name:      "stats",
				Usage:     "Show sync statistics (all connections unless one is given)",
				ArgsUsage: "[connection-id]",
				Action:    showStats,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openStore(c *cli.Context) (*store.Store, error) {
	dataDir := c.String("data-dir")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("unable to get user home directory: %v", err)
		}
		dataDir = filepath.Join(home, ".paperbase")
	}
	return store.Open(dataDir)
}

func buildSyncer(st *store.Store) *syncer.Orchestrator {
	creds := keychain.NewStore(providers.OAuthConfigs(
		os.Getenv("PAPERBASE_GOOGLE_CLIENT_ID"),
		os.Getenv("PAPERBASE_GOOGLE_CLIENT_SECRET"),
		os.Getenv("PAPERBASE_DROPBOX_CLIENT_ID"),
		os.Getenv("PAPERBASE_DROPBOX_CLIENT_SECRET"),
		os.Getenv("PAPERBASE_OAUTH_REDIRECT_URL"),
	))
	factory := providers.NewFactory(creds, providers.Options{
		GoogleAPIKey: os.Getenv("PAPERBASE_GOOGLE_API_KEY"),
	})
	pipeline := importer.NewPipeline(st.Documents(), nil)
	return syncer.New(st.Connections(), st.SyncLog(), creds, factory, pipeline)
}

func addConnection(c *cli.Context) error {
	provider := c.String("provider")
	if !providers.IsProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}

	folderRef := c.String("folder")
	if types.Provider(provider) == types.ProviderDriveShare {
		if id := providers.DriveFolderID(folderRef); id != "" {
			folderRef = id
		}
	}

	var extensions types.StringList
	if s := c.String("extensions"); s != "" {
		for _, e := range strings.Split(s, ",") {
			e = strings.TrimSpace(strings.ToLower(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			extensions = append(extensions, e)
		}
	}

	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}

	conn := &types.Connection{
		Provider:      types.Provider(provider),
		Name:          c.String("name"),
		FolderRef:     folderRef,
		Extensions:    extensions,
		MaxFileSizeMB: c.Int64("max-size"),
		MaxDepth:      c.Int("max-depth"),
		SyncInterval:  c.Int("interval"),
		AutoSync:      c.Bool("auto-sync"),
		TargetFolder:  c.String("target"),
	}
	if err := st.Connections().Create(c.Context, conn); err != nil {
		return fmt.Errorf("failed to create connection: %v", err)
	}

	fmt.Printf("Connection '%s' created (%s)\n", conn.ID, conn.Provider)
	if conn.Provider != types.ProviderDriveShare {
		fmt.Println("Complete the OAuth flow in the app before the first sync")
	}
	return nil
}

func listConnections(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}

	conns, err := st.Connections().List(c.Context, !c.Bool("all"))
	if err != nil {
		return fmt.Errorf("failed to list connections: %v", err)
	}
	if len(conns) == 0 {
		fmt.Println("No connections")
		return nil
	}

	for _, conn := range conns {
		name := conn.Name
		if name == "" {
			name = conn.FolderRef
		}
		last := "never"
		if conn.LastSyncAt != nil {
			last = conn.LastSyncAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-11s  %-9s  last sync: %s  %s\n",
			conn.ID, conn.Provider, conn.Status, last, name)
		if conn.LastSyncError != "" {
			fmt.Printf("    last error: %s\n", conn.LastSyncError)
		}
	}
	return nil
}

func removeConnection(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("connection id is required")
	}

	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}

	entries, err := st.SyncLog().CountForConnection(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to count sync log entries: %v", err)
	}

	if entries > 0 && !c.Bool("purge") {
		if err := st.Connections().Deactivate(c.Context, id); err != nil {
			return fmt.Errorf("failed to deactivate connection: %v", err)
		}
		fmt.Printf("Connection '%s' deactivated (%d log entries kept, use --purge to delete)\n", id, entries)
		return nil
	}

	if err := st.Connections().Delete(c.Context, id); err != nil {
		return fmt.Errorf("failed to delete connection: %v", err)
	}
	fmt.Printf("Connection '%s' deleted\n", id)
	return nil
}

func runSync(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("connection id is required")
	}

	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	orch := buildSyncer(st)

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.Bool("full") {
		if err := st.Connections().ResetCursor(ctx, id); err != nil {
			return fmt.Errorf("failed to reset cursor: %v", err)
		}
	}

	ch, err := orch.SyncWithProgress(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to start sync: %v", err)
	}

	var bar *pb.ProgressBar
	var last types.Progress
	for p := range ch {
		last = p
		if p.Phase == types.PhaseDownloading && p.FilesTotal > 0 {
			if bar == nil {
				bar = pb.New(p.FilesTotal)
				bar.SetTemplate(`{{counters . }} {{bar . }} {{percent . }} {{string . "file"}}`)
				bar.Start()
			}
			bar.SetCurrent(int64(p.FilesProcessed))
			bar.Set("file", p.CurrentFile)
		}
	}
	if bar != nil {
		bar.SetCurrent(int64(last.FilesProcessed))
		bar.Finish()
	}

	printResult(last.Result())
	if !last.Success && last.Error != "" {
		return fmt.Errorf("sync failed: %s", last.Error)
	}
	return nil
}

func runSyncAll(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	orch := buildSyncer(st)

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results, err := orch.SyncAllDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync: %v", err)
	}
	if len(results) == 0 {
		fmt.Println("No connections due for sync")
		return nil
	}

	for id, res := range results {
		fmt.Printf("Connection %s:\n", id)
		printResult(res)
	}
	return nil
}

func printResult(res *types.SyncResult) {
	if res.Error != "" {
		fmt.Printf("Sync failed: %s\n", res.Error)
		return
	}
	fmt.Printf("Files: %d listed, %d synced, %d skipped, %d errors (%s)\n",
		res.FilesTotal, res.FilesSynced, res.FilesSkipped, res.FilesErrored,
		util.FormatSize(res.BytesSynced))
	for _, e := range res.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func showLogs(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("connection id is required")
	}

	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}

	entries, err := st.SyncLog().List(c.Context, id, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list sync log: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No sync history")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-9s  %s (%s)",
			e.SyncedAt.Format("2006-01-02 15:04:05"), e.Outcome, e.Filename,
			util.FormatSize(e.Size))
		if e.Error != "" {
			line += "  " + e.Error
		}
		fmt.Println(line)
	}
	return nil
}

func showStats(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}

	stats, err := st.SyncLog().Stats(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to get stats: %v", err)
	}

	fmt.Printf("Files Synced: %d (Size: %s)\n", stats.TotalSynced, util.FormatSize(stats.TotalBytes))
	fmt.Printf("Files Skipped: %d\n", stats.TotalSkipped)
	fmt.Printf("Duplicates: %d\n", stats.TotalDuplicate)
	fmt.Printf("Errors: %d\n", stats.TotalErrors)
	return nil
}
