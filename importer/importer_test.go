package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-app/paperbase/types"
)

type fakeDocs struct {
	writeErr  error
	createErr error

	written []string
	removed []string
	created []*types.Document
}

func (f *fakeDocs) WriteFile(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	ref := "/uploads/" + suggestedName
	f.written = append(f.written, ref)
	return ref, nil
}

func (f *fakeDocs) RemoveFile(ctx context.Context, storageRef string) error {
	f.removed = append(f.removed, storageRef)
	return nil
}

func (f *fakeDocs) CreateDocument(ctx context.Context, doc *types.Document) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	doc.ID = "doc-1"
	f.created = append(f.created, doc)
	return doc.ID, nil
}

type fakeAnalyzer struct {
	analysis *types.Analysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text, sourcePathHint string) (*types.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

var pdfHeader = []byte("%PDF-1.4 sample content")

func testFile() types.RemoteFile {
	return types.RemoteFile{
		ID:   "r1",
		Name: "2024 Tax Return.pdf",
		Path: "Taxes/2024 Tax Return.pdf",
	}
}

func TestImportCreatesDocument(t *testing.T) {
	docs := &fakeDocs{}
	p := NewPipeline(docs, nil)
	conn := &types.Connection{ID: "c1", TargetFolder: "Inbox"}

	doc, err := p.Import(context.Background(), conn, testFile(), pdfHeader, "h1")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "c1", doc.ConnectionID)
	assert.Equal(t, "2024 Tax Return", doc.Title)
	assert.Equal(t, "2024 Tax Return.pdf", doc.Filename)
	assert.Equal(t, "/uploads/2024 Tax Return.pdf", doc.FilePath)
	assert.Equal(t, int64(len(pdfHeader)), doc.Size)
	assert.Equal(t, "h1", doc.Hash)
	assert.Equal(t, "Inbox", doc.Folder)
	assert.Equal(t, "Taxes/2024 Tax Return.pdf", doc.SourcePath)
	assert.Contains(t, doc.MimeType, "application/pdf")
	require.Len(t, docs.created, 1)
	assert.Empty(t, docs.removed)
}

func TestImportMimeFallsBackToExtension(t *testing.T) {
	docs := &fakeDocs{}
	p := NewPipeline(docs, nil)
	conn := &types.Connection{ID: "c1"}

	file := testFile()
	file.MimeType = "application/pdf"
	doc, err := p.Import(context.Background(), conn, file, []byte("x"), "h1")
	require.NoError(t, err)
	// Listing-provided type wins when it is specific.
	assert.Equal(t, "application/pdf", doc.MimeType)
}

func TestImportRollsBackOnRecordFailure(t *testing.T) {
	docs := &fakeDocs{createErr: errors.New("db locked")}
	p := NewPipeline(docs, nil)
	conn := &types.Connection{ID: "c1"}

	_, err := p.Import(context.Background(), conn, testFile(), pdfHeader, "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to create document record")
	require.Len(t, docs.removed, 1)
	assert.Equal(t, "/uploads/2024 Tax Return.pdf", docs.removed[0])
}

func TestImportWriteFailure(t *testing.T) {
	docs := &fakeDocs{writeErr: errors.New("disk full")}
	p := NewPipeline(docs, nil)

	_, err := p.Import(context.Background(), &types.Connection{ID: "c1"}, testFile(), pdfHeader, "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to persist file bytes")
	assert.Empty(t, docs.removed)
}

func TestImportAnalyzerPlacement(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &types.Analysis{
		SuggestedFolder: "Taxes/2024",
		ExtractedFields: map[string]string{"year": "2024"},
	}}
	docs := &fakeDocs{}
	p := NewPipeline(docs, analyzer)
	conn := &types.Connection{ID: "c1", TargetFolder: "Inbox", AutoAnalyze: true}

	doc, err := p.Import(context.Background(), conn, testFile(), pdfHeader, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, analyzer.calls)
	assert.Equal(t, "Taxes/2024", doc.Folder)
	assert.JSONEq(t, `{"year":"2024"}`, doc.Fields)
}

func TestImportAnalyzerSkippedWhenDisabled(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &types.Analysis{SuggestedFolder: "Elsewhere"}}
	docs := &fakeDocs{}
	p := NewPipeline(docs, analyzer)
	conn := &types.Connection{ID: "c1", TargetFolder: "Inbox"}

	doc, err := p.Import(context.Background(), conn, testFile(), pdfHeader, "h1")
	require.NoError(t, err)
	assert.Equal(t, 0, analyzer.calls)
	assert.Equal(t, "Inbox", doc.Folder)
}

func TestImportAnalyzerFailureIsBestEffort(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model offline")}
	docs := &fakeDocs{}
	p := NewPipeline(docs, analyzer)
	conn := &types.Connection{ID: "c1", TargetFolder: "Inbox", AutoAnalyze: true}

	doc, err := p.Import(context.Background(), conn, testFile(), pdfHeader, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Inbox", doc.Folder)
}
