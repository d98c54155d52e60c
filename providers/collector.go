package providers

import (
	"context"
	"log"
	"strings"

	"github.com/paperbase-app/paperbase/types"
)

// DefaultMaxDepth bounds the recursion into subfolders. Cycles are not
// expected from well-formed providers; the depth bound is the only guard.
const DefaultMaxDepth = 5

// Collector walks a folder tree through a ProviderAdapter, flattening it
// into candidate files annotated with the slash-joined subfolder path they
// came from. The path is later used as a categorization hint.
type Collector struct {
	adapter  types.ProviderAdapter
	maxDepth int
}

func NewCollector(adapter types.ProviderAdapter, maxDepth int) *Collector {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Collector{adapter: adapter, maxDepth: maxDepth}
}

// Collect lists folderRef and its subfolders. cursor is the connection's
// stored delta token and applies to the root listing only; the returned
// cursor is the root listing's final continuation token, empty when the
// provider has no delta support.
func (c *Collector) Collect(ctx context.Context, folderRef, cursor string) ([]types.RemoteFile, string, error) {
	var files []types.RemoteFile
	nextCursor, err := c.walk(ctx, folderRef, cursor, "", 0, &files)
	if err != nil {
		return nil, "", err
	}
	return files, nextCursor, nil
}

func (c *Collector) walk(ctx context.Context, folderRef, cursor, path string, depth int, out *[]types.RemoteFile) (string, error) {
	pageCursor := cursor
	for {
		listing, err := c.adapter.ListFolder(ctx, folderRef, pageCursor)
		if err != nil {
			return "", err
		}

		for _, f := range listing.Files {
			if f.IsFolder {
				if depth+1 > c.maxDepth {
					log.Printf("Skipping folder %s: max depth %d reached", f.Name, c.maxDepth)
					continue
				}
				sub := joinSourcePath(path, f.Name)
				// Subfolders are always listed from scratch; the delta
				// cursor belongs to the root folder.
				if _, err := c.walk(ctx, f.ID, "", sub, depth+1, out); err != nil {
					return "", err
				}
				continue
			}
			f.Path = joinSourcePath(path, f.Name)
			*out = append(*out, f)
		}

		if !listing.HasMore {
			return listing.NextCursor, nil
		}
		pageCursor = listing.NextCursor
	}
}

func joinSourcePath(base, name string) string {
	name = strings.Trim(name, "/")
	if base == "" {
		return name
	}
	return base + "/" + name
}
