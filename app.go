package main

import (
	"log"
	"os"
)

var (
	Version    = "dev"
	ListenAddr = ":8081"

	// Will be populated by linker from .builder.env
	GoogleClientID      = "n/a"
	GoogleClientSecret  = "n/a"
	DropboxClientID     = "n/a"
	DropboxClientSecret = "n/a"
	GoogleAPIKey        = "n/a"
)

type BuildCredentials struct {
	GoogleClientID      string
	GoogleClientSecret  string
	DropboxClientID     string
	DropboxClientSecret string
	GoogleAPIKey        string
	OAuthRedirectURL    string
}

func credFromEnv(env, build string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if build == "n/a" {
		return ""
	}
	return build
}

func main() {
	creds := BuildCredentials{
		GoogleClientID:      credFromEnv("PAPERBASE_GOOGLE_CLIENT_ID", GoogleClientID),
		GoogleClientSecret:  credFromEnv("PAPERBASE_GOOGLE_CLIENT_SECRET", GoogleClientSecret),
		DropboxClientID:     credFromEnv("PAPERBASE_DROPBOX_CLIENT_ID", DropboxClientID),
		DropboxClientSecret: credFromEnv("PAPERBASE_DROPBOX_CLIENT_SECRET", DropboxClientSecret),
		GoogleAPIKey:        credFromEnv("PAPERBASE_GOOGLE_API_KEY", GoogleAPIKey),
		OAuthRedirectURL:    os.Getenv("PAPERBASE_OAUTH_REDIRECT_URL"),
	}

	// Start everything needed to let the user onboard connections
	bootCtx, err := BootOnboard(creds)
	if err != nil {
		log.Fatalf("Failed to boot until onboarding: %s\n", err)
	}
	log.Printf("Boot: Ready to onboard connections")
	defer bootCtx.Logfile.Close()

	// Start the background sync scheduler
	err = BootSyncing(bootCtx)
	if err != nil {
		log.Fatalf("Failed to boot until syncing: %s\n", err)
	}
	log.Printf("Boot: Ready to sync")

	<-bootCtx.Done() // Block until the app terminates
}
