package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-app/paperbase/types"
)

const testFolderID = "1AbCdEfGhIjKlMnOpQrStUvWxYz12345"

func testConn() *types.Connection {
	return &types.Connection{
		ID:        "conn-1",
		Provider:  types.ProviderDriveShare,
		FolderRef: testFolderID,
	}
}

func TestDriveFolderID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "share link",
			input:    "https://drive.google.com/drive/folders/" + testFolderID,
			expected: testFolderID,
		},
		{
			name:     "share link with query",
			input:    "https://drive.google.com/drive/folders/" + testFolderID + "?usp=sharing",
			expected: testFolderID,
		},
		{
			name:     "open link",
			input:    "https://drive.google.com/open?id=" + testFolderID,
			expected: testFolderID,
		},
		{
			name:     "bare id",
			input:    testFolderID,
			expected: testFolderID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DriveFolderID(tt.input))
		})
	}
}

func TestCheckFolderAccess(t *testing.T) {
	err := checkFolderAccess("https://accounts.google.com/signin", "")
	assert.True(t, types.IsKind(err, types.KindAccessDenied))

	err = checkFolderAccess("https://drive.google.com/x", "<html>You need access</html>")
	assert.True(t, types.IsKind(err, types.KindAccessDenied))

	err = checkFolderAccess("https://drive.google.com/x",
		"<html>Sorry, the file you have requested does not exist.</html>")
	assert.True(t, types.IsKind(err, types.KindNotFound))

	assert.NoError(t, checkFolderAccess("https://drive.google.com/x", "<html>flip-entries</html>"))
}

func TestExtractEntries(t *testing.T) {
	fileID := "2BcDeFgHiJkLmNoPqRsTuVwXyZ098765"
	subID := "3CdEfGhIjKlMnOpQrStUvWxYz1234567"
	html := fmt.Sprintf(`
		<div class="flip-entries">
		<a href="https://drive.google.com/file/d/%s/view">doc</a>
		<a href="https://drive.google.com/drive/folders/%s">sub</a>
		<a href="https://drive.google.com/drive/folders/%s">self</a>
		<script>window._DRIVE_ivd = '[["%s","report.pdf"],["%s","Invoices"]]';</script>
		</div>`,
		fileID, subID, testFolderID, fileID, subID)

	entries := extractEntries(html, testFolderID)
	require.Len(t, entries, 2)

	byID := map[string]types.RemoteFile{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, "report.pdf", byID[fileID].Name)
	assert.False(t, byID[fileID].IsFolder)
	assert.Equal(t, "Invoices", byID[subID].Name)
	assert.True(t, byID[subID].IsFolder)
}

func TestExtractEntriesIgnoresUINames(t *testing.T) {
	id := "4DeFgHiJkLmNoPqRsTuVwXyZ12345678"
	html := fmt.Sprintf(`[["%s","Sign in"]`, id)
	// UI labels must not be mistaken for folder contents.
	assert.Empty(t, extractEntries(html, testFolderID))
}

func TestDriveShareListFallback(t *testing.T) {
	fileID := "2BcDeFgHiJkLmNoPqRsTuVwXyZ098765"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/embeddedfolderview":
			// Format drifted: no entries, no structural markers.
			fmt.Fprint(w, "<html><body>something unexpected</body></html>")
		case r.URL.Path == "/drive/folders/"+testFolderID:
			fmt.Fprintf(w, `<html><div class="flip-entries">[["%s","scan.pdf"]</div></html>`, fileID)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	listing, err := adapter.ListFolder(context.Background(), testFolderID, "")
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "scan.pdf", listing.Files[0].Name)
}

func TestDriveShareListEmptyConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A rendered folder view with zero entries is a real empty folder.
		fmt.Fprint(w, `<html><div class="flip-entries"></div></html>`)
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	listing, err := adapter.ListFolder(context.Background(), testFolderID, "")
	require.NoError(t, err)
	assert.Empty(t, listing.Files)
}

func TestDriveShareListAllStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>unrecognized markup</body></html>")
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	_, err := adapter.ListFolder(context.Background(), testFolderID, "")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindListingFailed))
}

func TestDriveShareListAccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>You need access. Request access, or switch accounts.</html>")
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	_, err := adapter.ListFolder(context.Background(), testFolderID, "")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))
}

func TestDriveShareDownloadDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/uc", r.URL.Path)
		require.Equal(t, "file-1", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 content"))
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	data, err := adapter.Download(context.Background(), types.RemoteFile{ID: "file-1", Name: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 content"), data)
}

func TestDriveShareDownloadConfirmFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "" {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><form action="/uc"><input type="hidden" name="confirm" value="t0k3n">`+
				`<input type="hidden" name="uuid" value="u-1"></form>download_warning</html>`)
			return
		}
		require.Equal(t, "t0k3n", r.URL.Query().Get("confirm"))
		require.Equal(t, "u-1", r.URL.Query().Get("uuid"))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("big file bytes"))
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	data, err := adapter.Download(context.Background(), types.RemoteFile{ID: "file-big", Name: "big.iso"})
	require.NoError(t, err)
	assert.Equal(t, []byte("big file bytes"), data)
}

func TestDriveShareDownloadQuotaExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The confirm page keeps coming back no matter what.
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><input name="confirm" value="x">download_warning</html>`)
	}))
	defer srv.Close()

	adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
	_, err := adapter.Download(context.Background(), types.RemoteFile{ID: "file-big"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindQuotaExceeded))
}

func TestDriveShareDownloadErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   types.ErrorKind
	}{
		{http.StatusForbidden, types.KindAccessDenied},
		{http.StatusNotFound, types.KindNotFound},
		{http.StatusTooManyRequests, types.KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			adapter := newDriveShareAdapterForTest(testConn(), srv.Client(), srv.URL)
			_, err := adapter.Download(context.Background(), types.RemoteFile{ID: "f"})
			require.Error(t, err)
			assert.True(t, types.IsKind(err, tt.kind))
		})
	}
}
