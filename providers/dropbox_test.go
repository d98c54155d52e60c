package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/paperbase-app/paperbase/types"
)

type staticCreds struct {
	token string
}

func (c staticCreds) Token(ctx context.Context, conn *types.Connection) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: c.token}, nil
}

func (c staticCreds) Refresh(ctx context.Context, conn *types.Connection) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: c.token}, nil
}

func (c staticCreds) Save(conn *types.Connection, tok *oauth2.Token) error { return nil }
func (c staticCreds) Delete(conn *types.Connection) error                  { return nil }

func newTestDropboxAdapter(srvURL string) *DropboxAdapter {
	conn := &types.Connection{ID: "conn-1", Provider: types.ProviderDropbox, FolderRef: "/docs"}
	a := NewDropboxAdapter(conn, staticCreds{token: "secret"}, http.DefaultClient)
	a.apiBase = srvURL
	a.contentBase = srvURL
	return a
}

func TestDropboxListFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/list_folder", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "/docs", req["path"])

		fmt.Fprint(w, `{
			"entries": [
				{".tag": "file", "id": "id:aaa", "name": "scan.pdf", "path_display": "/docs/scan.pdf",
				 "size": 1234, "content_hash": "h1", "server_modified": "2024-03-01T10:00:00Z"},
				{".tag": "folder", "id": "id:bbb", "name": "Invoices", "path_display": "/docs/Invoices"},
				{".tag": "deleted", "id": "id:ccc", "name": "gone.pdf"}
			],
			"cursor": "cur-1",
			"has_more": false
		}`)
	}))
	defer srv.Close()

	listing, err := newTestDropboxAdapter(srv.URL).ListFolder(context.Background(), "/docs", "")
	require.NoError(t, err)
	require.Len(t, listing.Files, 2)
	assert.Equal(t, "scan.pdf", listing.Files[0].Name)
	assert.Equal(t, int64(1234), listing.Files[0].Size)
	assert.Equal(t, "h1", listing.Files[0].Hash)
	assert.False(t, listing.Files[0].IsFolder)
	assert.True(t, listing.Files[1].IsFolder)
	assert.Equal(t, "cur-1", listing.NextCursor)
	assert.False(t, listing.HasMore)
}

func TestDropboxListFolderContinue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/list_folder/continue", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "cur-1", req["cursor"])
		fmt.Fprint(w, `{"entries": [], "cursor": "cur-2", "has_more": false}`)
	}))
	defer srv.Close()

	listing, err := newTestDropboxAdapter(srv.URL).ListFolder(context.Background(), "/docs", "cur-1")
	require.NoError(t, err)
	assert.Empty(t, listing.Files)
	assert.Equal(t, "cur-2", listing.NextCursor)
}

func TestDropboxDownloadPrefersID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/download", r.URL.Path)
		var arg map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg))
		require.Equal(t, "id:aaa", arg["path"])
		w.Write([]byte("pdf bytes"))
	}))
	defer srv.Close()

	data, err := newTestDropboxAdapter(srv.URL).Download(context.Background(), types.RemoteFile{
		ID:   "id:aaa",
		Path: "Invoices/scan.pdf", // source path, not a valid API ref
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf bytes"), data)
}

func TestDropboxErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   types.ErrorKind
	}{
		{"expired token", http.StatusUnauthorized, `{"error_summary": "expired_access_token/"}`, types.KindAuthExpired},
		{"rate limited", http.StatusTooManyRequests, `{"error_summary": "too_many_requests/"}`, types.KindRateLimited},
		{"access denied", http.StatusForbidden, `{"error_summary": "no_permission/"}`, types.KindAccessDenied},
		{"path not found", http.StatusConflict, `{"error_summary": "path/not_found/"}`, types.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestDropboxAdapter(srv.URL).ListFolder(context.Background(), "/docs", "")
			require.Error(t, err)
			assert.True(t, types.IsKind(err, tt.kind), "got %v", err)
		})
	}
}
