// Package keychain implements the credential store on top of the OS keyring.
// Tokens are scoped per connection; nothing here is process-global state.
package keychain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/paperbase-app/paperbase/types"
)

const keyringService = "Paperbase"

func tokenKey(conn *types.Connection) string {
	return fmt.Sprintf("%s-%s-token", string(conn.Provider), conn.ID)
}

// Store holds the per-provider OAuth configs and loads, refreshes and saves
// tokens through the OS keyring. It implements types.CredentialStore.
type Store struct {
	configs map[types.Provider]*oauth2.Config
}

func NewStore(configs map[types.Provider]*oauth2.Config) *Store {
	if configs == nil {
		configs = map[types.Provider]*oauth2.Config{}
	}
	return &Store{configs: configs}
}

// Config returns the OAuth config registered for a provider, if any.
func (s *Store) Config(provider types.Provider) (*oauth2.Config, bool) {
	cfg, ok := s.configs[provider]
	return cfg, ok
}

// Token loads the connection's token from the keyring, refreshing it first
// when it is expired and a refresh token is available.
func (s *Store) Token(ctx context.Context, conn *types.Connection) (*oauth2.Token, error) {
	tok, err := s.load(conn)
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}
	return s.refresh(ctx, conn, tok)
}

// Refresh forces a token refresh regardless of the stored expiry.
func (s *Store) Refresh(ctx context.Context, conn *types.Connection) (*oauth2.Token, error) {
	tok, err := s.load(conn)
	if err != nil {
		return nil, err
	}
	// Backdating the expiry makes the oauth2 token source hit the refresh
	// endpoint even when the stored token still looks valid.
	tok.Expiry = time.Now().Add(-time.Minute)
	return s.refresh(ctx, conn, tok)
}

func (s *Store) refresh(ctx context.Context, conn *types.Connection, tok *oauth2.Token) (*oauth2.Token, error) {
	cfg, ok := s.configs[conn.Provider]
	if !ok {
		return nil, types.NewSyncError(types.KindAuthExpired, "keychain.refresh",
			"no oauth config registered for provider %s", conn.Provider)
	}
	if tok.RefreshToken == "" {
		return nil, types.NewSyncError(types.KindAuthExpired, "keychain.refresh",
			"token expired and no refresh token stored; reauthorize the connection")
	}
	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, types.WrapSyncError(types.KindAuthExpired, "keychain.refresh", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := s.Save(conn, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func (s *Store) load(conn *types.Connection) (*oauth2.Token, error) {
	tokenJSON, err := keyring.Get(keyringService, tokenKey(conn))
	if err != nil {
		return nil, types.NewSyncError(types.KindAuthExpired, "keychain.load",
			"no token in keyring for connection %s: %s", conn.ID, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(tokenJSON), &tok); err != nil {
		return nil, fmt.Errorf("unable to unmarshal stored token: %v", err)
	}
	return &tok, nil
}

// Save writes the token to the keyring.
func (s *Store) Save(conn *types.Connection, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("unable to marshal token: %v", err)
	}
	if err := keyring.Set(keyringService, tokenKey(conn), string(b)); err != nil {
		return fmt.Errorf("unable to save token to keyring: %v", err)
	}
	return nil
}

// Delete removes the connection's token. A missing entry is not an error.
func (s *Store) Delete(conn *types.Connection) error {
	err := keyring.Delete(keyringService, tokenKey(conn))
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("unable to delete token from keyring: %v", err)
	}
	return nil
}
