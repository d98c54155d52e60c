// Package providers contains the per-provider adapters for listing and
// downloading remote files. Each provider is selected once at
// connection-configuration time; the sync loop only sees the
// types.ProviderAdapter interface.
package providers

import (
	"net"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/paperbase-app/paperbase/types"
)

// Options carries the provider-level configuration shared by all adapters.
type Options struct {
	// HTTPClient is used for raw HTTP providers. Defaults to a client with
	// a bounded per-call timeout; listing and download calls never hang
	// indefinitely.
	HTTPClient *http.Client

	// GoogleAPIKey enables the authenticated listing strategy for public
	// Drive share links. Optional.
	GoogleAPIKey string
}

// DefaultHTTPClient bounds every provider call. Timeouts are classified as
// transient network failures by the adapters.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   15 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// DropboxEndpoint is dropbox's OAuth2 endpoint.
var DropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

// GoogleDriveScopes are the read-only scopes requested for Drive syncing.
var GoogleDriveScopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/drive.metadata.readonly",
}

// OAuthConfigs builds the per-provider OAuth configs from client
// credentials. Providers without an entry cannot complete an auth flow but
// public-share connections do not need one.
func OAuthConfigs(googleClientID, googleClientSecret, dropboxClientID, dropboxClientSecret, redirectURL string) map[types.Provider]*oauth2.Config {
	configs := map[types.Provider]*oauth2.Config{}
	if googleClientID != "" {
		configs[types.ProviderGoogleDrive] = &oauth2.Config{
			ClientID:     googleClientID,
			ClientSecret: googleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       GoogleDriveScopes,
			RedirectURL:  redirectURL,
		}
	}
	if dropboxClientID != "" {
		configs[types.ProviderDropbox] = &oauth2.Config{
			ClientID:     dropboxClientID,
			ClientSecret: dropboxClientSecret,
			Endpoint:     DropboxEndpoint,
			RedirectURL:  redirectURL,
		}
	}
	return configs
}

// AuthCodeOptions returns the extra authorization-URL parameters each
// provider needs before it will issue a refresh token.
func AuthCodeOptions(provider types.Provider) []oauth2.AuthCodeOption {
	switch provider {
	case types.ProviderGoogleDrive:
		return []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		}
	case types.ProviderDropbox:
		return []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("token_access_type", "offline"),
		}
	}
	return nil
}

// Factory builds the adapter for a connection's provider.
type Factory struct {
	creds types.CredentialStore
	opts  Options
}

func NewFactory(creds types.CredentialStore, opts Options) *Factory {
	if opts.HTTPClient == nil {
		opts.HTTPClient = DefaultHTTPClient()
	}
	return &Factory{creds: creds, opts: opts}
}

// Adapter returns the ProviderAdapter for conn.
func (f *Factory) Adapter(conn *types.Connection) (types.ProviderAdapter, error) {
	switch conn.Provider {
	case types.ProviderGoogleDrive:
		return NewGoogleDriveAdapter(conn, f.creds), nil
	case types.ProviderDropbox:
		return NewDropboxAdapter(conn, f.creds, f.opts.HTTPClient), nil
	case types.ProviderDriveShare:
		return NewDriveShareAdapter(conn, f.opts.HTTPClient, f.opts.GoogleAPIKey), nil
	}
	return nil, types.NewSyncError(types.KindUnknown, "providers.adapter",
		"unsupported provider %q", conn.Provider)
}

// IsProvider reports whether s names a known provider.
func IsProvider(s string) bool {
	switch types.Provider(s) {
	case types.ProviderGoogleDrive, types.ProviderDropbox, types.ProviderDriveShare:
		return true
	}
	return false
}

var driveFolderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
}

// DriveFolderID extracts the folder id from a Google Drive share link. A
// bare id is returned unchanged.
func DriveFolderID(ref string) string {
	for _, p := range driveFolderIDPatterns {
		if m := p.FindStringSubmatch(ref); m != nil {
			return m[1]
		}
	}
	return ref
}
