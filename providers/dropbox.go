package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/paperbase-app/paperbase/types"
)

const (
	dropboxAPIBase     = "https://api.dropboxapi.com/2"
	dropboxContentBase = "https://content.dropboxapi.com/2"
)

// DropboxAdapter talks to the Dropbox HTTP API directly. Listing uses
// files/list_folder with the continuation cursor as the delta token, so a
// stored cursor makes subsequent syncs return only changed entries.
type DropboxAdapter struct {
	conn   *types.Connection
	creds  types.CredentialStore
	client *http.Client

	// Overridable in tests.
	apiBase     string
	contentBase string
}

func NewDropboxAdapter(conn *types.Connection, creds types.CredentialStore, client *http.Client) *DropboxAdapter {
	return &DropboxAdapter{
		conn:        conn,
		creds:       creds,
		client:      client,
		apiBase:     dropboxAPIBase,
		contentBase: dropboxContentBase,
	}
}

func (d *DropboxAdapter) Provider() types.Provider {
	return types.ProviderDropbox
}

type dropboxEntry struct {
	Tag            string `json:".tag"`
	Name           string `json:"name"`
	ID             string `json:"id"`
	PathDisplay    string `json:"path_display"`
	Size           int64  `json:"size"`
	ContentHash    string `json:"content_hash"`
	ServerModified string `json:"server_modified"`
}

type dropboxListResponse struct {
	Entries []dropboxEntry  `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
	Error   json.RawMessage `json:"error"`
	Summary string          `json:"error_summary"`
}

func (d *DropboxAdapter) ListFolder(ctx context.Context, folderRef, cursor string) (*types.Listing, error) {
	var url string
	var body interface{}
	if cursor != "" {
		url = d.apiBase + "/files/list_folder/continue"
		body = map[string]string{"cursor": cursor}
	} else {
		path := folderRef
		if path == "/" {
			path = ""
		}
		url = d.apiBase + "/files/list_folder"
		body = map[string]interface{}{
			"path":                                path,
			"recursive":                           false,
			"include_deleted":                     false,
			"include_has_explicit_shared_members": false,
		}
	}

	respBody, err := d.post(ctx, url, body, nil)
	if err != nil {
		return nil, err
	}

	var resp dropboxListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unable to decode dropbox listing: %v", err)
	}
	if len(resp.Error) > 0 {
		return nil, types.NewSyncError(types.KindListingFailed, "dropbox.list", "%s", resp.Summary)
	}

	listing := &types.Listing{
		NextCursor: resp.Cursor,
		HasMore:    resp.HasMore,
	}
	for _, e := range resp.Entries {
		switch e.Tag {
		case "file", "folder":
		default:
			continue
		}
		modified, _ := time.Parse(time.RFC3339, e.ServerModified)
		listing.Files = append(listing.Files, types.RemoteFile{
			ID:       e.ID,
			Name:     e.Name,
			Path:     e.PathDisplay,
			Size:     e.Size,
			Hash:     e.ContentHash,
			Modified: modified,
			IsFolder: e.Tag == "folder",
		})
	}
	return listing, nil
}

func (d *DropboxAdapter) Download(ctx context.Context, file types.RemoteFile) ([]byte, error) {
	// The content API accepts "id:..." refs; preferring the id keeps the
	// call independent of the display path the collector rewrites.
	ref := file.ID
	if ref == "" {
		ref = file.Path
	}
	arg, err := json.Marshal(map[string]string{"path": ref})
	if err != nil {
		return nil, fmt.Errorf("unable to marshal download arg: %v", err)
	}
	return d.post(ctx, d.contentBase+"/files/download", nil, map[string]string{
		"Dropbox-API-Arg": string(arg),
	})
}

func (d *DropboxAdapter) post(ctx context.Context, url string, body interface{}, headers map[string]string) ([]byte, error) {
	tok, err := d.creds.Token(ctx, d.conn)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classifyDropboxTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapSyncError(types.KindTransientNetwork, "dropbox.read", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, types.NewSyncError(types.KindAuthExpired, "dropbox", "access token rejected")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewSyncError(types.KindRateLimited, "dropbox", "rate limited, retry later")
	case resp.StatusCode == http.StatusForbidden:
		return nil, types.NewSyncError(types.KindAccessDenied, "dropbox", "access denied")
	case resp.StatusCode == http.StatusConflict && strings.Contains(string(data), "not_found"):
		return nil, types.NewSyncError(types.KindNotFound, "dropbox", "path not found")
	}
	return nil, types.NewSyncError(types.KindUnknown, "dropbox",
		"unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
}

func classifyDropboxTransport(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.WrapSyncError(types.KindTransientNetwork, "dropbox", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapSyncError(types.KindTransientNetwork, "dropbox", err)
	}
	return types.WrapSyncError(types.KindTransientNetwork, "dropbox", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
