package providers

import (
	"context"
	"fmt"
	"log"

	"github.com/paperbase-app/paperbase/types"
)

// ListingStrategy is one way of enumerating a public folder. Strategies are
// ranked by confidence; public folder HTML is undocumented and drifts, so a
// failing strategy degrades to a slower, more robust one instead of
// breaking the sync outright.
type ListingStrategy interface {
	Name() string

	// List returns the extracted files and whether the strategy positively
	// confirmed the folder's contents. ok=true with zero files means
	// "confirmed empty and accessible".
	List(ctx context.Context, folderID string) ([]types.RemoteFile, bool, error)
}

// FolderLister drives the fallback chain for one folder. The chain stops at
// the first confirmed non-empty result; a confirmed-empty result still
// falls through to the next strategy before being believed.
type FolderLister struct {
	strategies []ListingStrategy
}

func NewFolderLister(strategies ...ListingStrategy) *FolderLister {
	return &FolderLister{strategies: strategies}
}

func (l *FolderLister) List(ctx context.Context, folderID string) ([]types.RemoteFile, error) {
	if len(l.strategies) == 0 {
		return nil, types.NewSyncError(types.KindListingFailed, "lister",
			"no listing strategies configured")
	}

	emptyConfirmed := false
	var denied error
	lastDiag := ""
	for _, s := range l.strategies {
		files, ok, err := s.List(ctx, folderID)
		if err != nil {
			log.Printf("Listing strategy %s failed for folder %s: %s", s.Name(), folderID, err)
			lastDiag = fmt.Sprintf("%s: %s", s.Name(), err)
			if denied == nil && (types.IsKind(err, types.KindAccessDenied) || types.IsKind(err, types.KindNotFound)) {
				denied = err
			}
			continue
		}
		if !ok {
			lastDiag = fmt.Sprintf("%s: no well-formed result", s.Name())
			continue
		}
		if len(files) > 0 {
			return files, nil
		}
		// Confirmed empty; a lower-confidence strategy may still see files.
		emptyConfirmed = true
	}

	if emptyConfirmed {
		return nil, nil
	}
	if denied != nil {
		return nil, denied
	}
	return nil, types.NewSyncError(types.KindListingFailed, "lister",
		"all listing strategies exhausted: %s", lastDiag)
}
