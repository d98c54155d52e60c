// Package importer persists downloaded bytes and their document record as a
// unit, optionally consulting the external content-analysis collaborator
// for folder placement.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/paperbase-app/paperbase/types"
	"github.com/paperbase-app/paperbase/util"
)

// Pipeline is the import stage of a sync. The analyzer is optional; when
// absent (or disabled on the connection) documents land in the connection's
// target folder untouched.
type Pipeline struct {
	docs     types.DocumentStore
	analyzer types.Analyzer
}

func NewPipeline(docs types.DocumentStore, analyzer types.Analyzer) *Pipeline {
	return &Pipeline{docs: docs, analyzer: analyzer}
}

// Import writes the bytes, creates the document record and applies the
// analyzer's placement suggestion if one comes back. The byte write and the
// record are treated as a unit: if the record cannot be persisted the
// written file is removed again.
func (p *Pipeline) Import(ctx context.Context, conn *types.Connection, file types.RemoteFile, data []byte, hash string) (*types.Document, error) {
	storageRef, err := p.docs.WriteFile(ctx, data, file.Name)
	if err != nil {
		return nil, fmt.Errorf("unable to persist file bytes: %w", err)
	}

	mime := file.MimeType
	if mime == "" || mime == "application/octet-stream" {
		if detected := mimetype.Detect(data); detected != nil {
			mime = detected.String()
		}
	}
	if mime == "" {
		mime = util.MimeFromExtension(file.Name)
	}

	doc := &types.Document{
		ConnectionID: conn.ID,
		Title:        util.TitleFromFilename(file.Name),
		Filename:     file.Name,
		FilePath:     storageRef,
		Size:         int64(len(data)),
		MimeType:     mime,
		Hash:         hash,
		Folder:       conn.TargetFolder,
		SourcePath:   file.Path,
	}

	if p.analyzer != nil && conn.AutoAnalyze {
		p.applyAnalysis(ctx, doc, mime, data, file.Path)
	}

	if _, err := p.docs.CreateDocument(ctx, doc); err != nil {
		if rmErr := p.docs.RemoveFile(ctx, storageRef); rmErr != nil {
			log.Printf("Unable to roll back file write %s: %s", storageRef, rmErr)
		}
		return nil, fmt.Errorf("unable to create document record: %w", err)
	}
	return doc, nil
}

// applyAnalysis is best-effort: the import never fails because the
// collaborator did.
func (p *Pipeline) applyAnalysis(ctx context.Context, doc *types.Document, mime string, data []byte, pathHint string) {
	text := ""
	if strings.HasPrefix(mime, "text/") {
		text = string(data)
	}
	analysis, err := p.analyzer.Analyze(ctx, text, pathHint)
	if err != nil {
		log.Printf("Content analysis failed for %s: %s", doc.Filename, err)
		return
	}
	if analysis == nil {
		return
	}
	if analysis.SuggestedFolder != "" {
		doc.Folder = analysis.SuggestedFolder
	}
	if len(analysis.ExtractedFields) > 0 {
		b, err := json.Marshal(analysis.ExtractedFields)
		if err == nil {
			doc.Fields = string(b)
		}
	}
}
