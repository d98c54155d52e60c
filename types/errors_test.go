package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapSyncError(KindTransientNetwork, "dropbox.list", cause)

	assert.True(t, errors.Is(err, cause))

	var se *SyncError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindTransientNetwork, se.Kind)
	assert.Contains(t, err.Error(), "dropbox.list")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := NewSyncError(KindAuthExpired, "keychain.load", "no token")
	outer := fmt.Errorf("sync failed: %w", inner)

	assert.Equal(t, KindAuthExpired, KindOf(outer))
	assert.True(t, IsKind(outer, KindAuthExpired))
	assert.False(t, IsKind(outer, KindRateLimited))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindUnknown))
}

func TestIsConnectionFatal(t *testing.T) {
	fatal := []ErrorKind{KindAuthExpired, KindListingFailed, KindRateLimited}
	for _, k := range fatal {
		assert.True(t, IsConnectionFatal(NewSyncError(k, "op", "x")), "%s should be fatal", k)
	}
	perFile := []ErrorKind{KindTransientNetwork, KindQuotaExceeded, KindAccessDenied, KindNotFound}
	for _, k := range perFile {
		assert.False(t, IsConnectionFatal(NewSyncError(k, "op", "x")), "%s should stay per-file", k)
	}
	assert.False(t, IsConnectionFatal(errors.New("plain")))
}

func TestStringListContains(t *testing.T) {
	assert.True(t, StringList(nil).Contains(".pdf"), "empty filter admits everything")
	assert.True(t, StringList{".pdf", ".docx"}.Contains(".PDF"))
	assert.False(t, StringList{".pdf"}.Contains(".txt"))
}

func TestMaxFileSizeBytes(t *testing.T) {
	c := Connection{}
	assert.Equal(t, int64(50*1024*1024), c.MaxFileSizeBytes())
	c.MaxFileSizeMB = 2
	assert.Equal(t, int64(2*1024*1024), c.MaxFileSizeBytes())
}

func TestRemoteFileExt(t *testing.T) {
	assert.Equal(t, ".pdf", RemoteFile{Name: "Scan.PDF"}.Ext())
	assert.Equal(t, "", RemoteFile{Name: "README"}.Ext())
}
