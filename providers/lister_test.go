package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-app/paperbase/types"
)

type stubStrategy struct {
	name  string
	files []types.RemoteFile
	ok    bool
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) List(ctx context.Context, folderID string) ([]types.RemoteFile, bool, error) {
	s.calls++
	return s.files, s.ok, s.err
}

func TestFolderListerStopsAtFirstNonEmpty(t *testing.T) {
	first := &stubStrategy{name: "first", ok: true, files: []types.RemoteFile{{ID: "a"}}}
	second := &stubStrategy{name: "second", ok: true, files: []types.RemoteFile{{ID: "b"}}}

	files, err := NewFolderLister(first, second).List(context.Background(), "folder")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a", files[0].ID)
	assert.Equal(t, 0, second.calls, "lower-confidence strategy must not run")
}

func TestFolderListerFallsThroughOnFailure(t *testing.T) {
	first := &stubStrategy{name: "first", err: types.NewSyncError(types.KindTransientNetwork, "t", "timeout")}
	second := &stubStrategy{name: "second", ok: true, files: []types.RemoteFile{{ID: "b"}}}

	files, err := NewFolderLister(first, second).List(context.Background(), "folder")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b", files[0].ID)
}

func TestFolderListerEmptyStillFallsThrough(t *testing.T) {
	// A confirmed-empty result is only believed once a lower-confidence
	// strategy has had the chance to contradict it.
	first := &stubStrategy{name: "first", ok: true}
	second := &stubStrategy{name: "second", ok: true, files: []types.RemoteFile{{ID: "b"}}}

	files, err := NewFolderLister(first, second).List(context.Background(), "folder")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestFolderListerConfirmedEmpty(t *testing.T) {
	first := &stubStrategy{name: "first", ok: true}
	second := &stubStrategy{name: "second", ok: true}

	files, err := NewFolderLister(first, second).List(context.Background(), "folder")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFolderListerAllExhausted(t *testing.T) {
	// Strategies that cannot confirm anything never become "empty folder".
	first := &stubStrategy{name: "first", err: types.NewSyncError(types.KindTransientNetwork, "t", "timeout")}
	second := &stubStrategy{name: "second"} // ok=false, format drifted

	_, err := NewFolderLister(first, second).List(context.Background(), "folder")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindListingFailed))
}

func TestFolderListerPrefersAccessDiagnostics(t *testing.T) {
	first := &stubStrategy{name: "first", err: types.NewSyncError(types.KindAccessDenied, "t", "not shared")}
	second := &stubStrategy{name: "second", err: types.NewSyncError(types.KindTransientNetwork, "t", "timeout")}

	_, err := NewFolderLister(first, second).List(context.Background(), "folder")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))
}
