package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/paperbase-app/paperbase/types"
)

const (
	driveFolderMimeType = "application/vnd.google-apps.folder"
	driveNativePrefix   = "application/vnd.google-apps"
	drivePageSize       = 100
)

// GoogleDriveAdapter lists and downloads files through the authenticated
// Drive v3 API. The listing cursor is the Drive page token.
type GoogleDriveAdapter struct {
	conn  *types.Connection
	creds types.CredentialStore

	// newService is swapped out in tests.
	newService func(ctx context.Context, tok *oauth2.Token) (*drive.Service, error)
}

func NewGoogleDriveAdapter(conn *types.Connection, creds types.CredentialStore) *GoogleDriveAdapter {
	return &GoogleDriveAdapter{
		conn:  conn,
		creds: creds,
		newService: func(ctx context.Context, tok *oauth2.Token) (*drive.Service, error) {
			return drive.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
		},
	}
}

func (g *GoogleDriveAdapter) Provider() types.Provider {
	return types.ProviderGoogleDrive
}

func (g *GoogleDriveAdapter) service(ctx context.Context) (*drive.Service, error) {
	tok, err := g.creds.Token(ctx, g.conn)
	if err != nil {
		return nil, err
	}
	srv, err := g.newService(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("unable to build drive client: %v", err)
	}
	return srv, nil
}

func (g *GoogleDriveAdapter) ListFolder(ctx context.Context, folderRef, cursor string) (*types.Listing, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	folderID := DriveFolderID(folderRef)
	call := srv.Files.List().
		PageSize(drivePageSize).
		Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
		Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime, md5Checksum)").
		Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	r, err := call.Do()
	if err != nil {
		return nil, classifyDriveError("googledrive.list", err)
	}

	listing := &types.Listing{
		NextCursor: r.NextPageToken,
		HasMore:    r.NextPageToken != "",
	}
	for _, f := range r.Files {
		isFolder := f.MimeType == driveFolderMimeType
		if !isFolder && len(f.MimeType) >= len(driveNativePrefix) && f.MimeType[:len(driveNativePrefix)] == driveNativePrefix {
			// Docs/Sheets and other Drive-native documents have no binary
			// representation to import.
			continue
		}
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		listing.Files = append(listing.Files, types.RemoteFile{
			ID:       f.Id,
			Name:     f.Name,
			Size:     f.Size,
			Hash:     f.Md5Checksum,
			Modified: modified,
			MimeType: f.MimeType,
			IsFolder: isFolder,
		})
	}
	return listing, nil
}

func (g *GoogleDriveAdapter) Download(ctx context.Context, file types.RemoteFile) ([]byte, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Files.Get(file.ID).Context(ctx).Download()
	if err != nil {
		return nil, classifyDriveError("googledrive.download", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapSyncError(types.KindTransientNetwork, "googledrive.download", err)
	}
	return data, nil
}

func classifyDriveError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401:
			return types.WrapSyncError(types.KindAuthExpired, op, err)
		case 403:
			for _, e := range gerr.Errors {
				switch e.Reason {
				case "userRateLimitExceeded", "rateLimitExceeded":
					return types.WrapSyncError(types.KindRateLimited, op, err)
				case "downloadQuotaExceeded", "quotaExceeded":
					return types.WrapSyncError(types.KindQuotaExceeded, op, err)
				}
			}
			return types.WrapSyncError(types.KindAccessDenied, op, err)
		case 404:
			return types.WrapSyncError(types.KindNotFound, op, err)
		case 429:
			return types.WrapSyncError(types.KindRateLimited, op, err)
		}
		return types.WrapSyncError(types.KindUnknown, op+" (http "+strconv.Itoa(gerr.Code)+")", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.WrapSyncError(types.KindTransientNetwork, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapSyncError(types.KindTransientNetwork, op, err)
	}
	return types.WrapSyncError(types.KindUnknown, op, err)
}
