package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/paperbase-app/paperbase/types"
)

// Extraction heuristics for public Drive folder HTML. Several independent
// patterns are applied and merged; Google changes the markup without notice
// and no single pattern survives every variant.
var (
	fileLinkPattern   = regexp.MustCompile(`file/d/([a-zA-Z0-9_-]{20,})`)
	folderLinkPattern = regexp.MustCompile(`folders/([a-zA-Z0-9_-]{20,})`)
	jsonArrayPattern  = regexp.MustCompile(`\["([a-zA-Z0-9_-]{25,})","([^"]+)"`)
	dataIDPattern     = regexp.MustCompile(`data-id="([a-zA-Z0-9_-]{20,})"`)
)

// Structural markers of a successfully rendered folder view. Their absence
// on an otherwise clean page means the format drifted and "no files found"
// cannot be trusted.
var renderedFolderMarkers = []string{
	"flip-entries",
	"embeddedfolderview",
	"_DRIVE_ivd",
	"drive-viewer",
}

// UI labels that the JSON-array heuristic must not mistake for filenames.
var scrapeUINames = map[string]bool{
	"sign in":  true,
	"anmelden": true,
	"drive":    true,
	"google":   true,
}

// checkFolderAccess distinguishes "needs public sharing" from "does not
// exist" based on the final URL and well-known page substrings. Best-effort:
// these markers track observed Google behavior, not a documented contract.
func checkFolderAccess(finalURL, html string) error {
	if strings.Contains(finalURL, "accounts.google.com") {
		return types.NewSyncError(types.KindAccessDenied, "driveshare",
			"folder requires sign-in; share it as 'anyone with the link'")
	}
	lower := strings.ToLower(html)
	if strings.Contains(lower, "you need access") || strings.Contains(lower, "zugriff anfordern") {
		return types.NewSyncError(types.KindAccessDenied, "driveshare",
			"access denied; the folder is not shared publicly")
	}
	if strings.Contains(lower, "sorry, the file you have requested does not exist") {
		return types.NewSyncError(types.KindNotFound, "driveshare",
			"folder not found; the link is invalid or the folder was deleted")
	}
	return nil
}

func pageLooksRendered(html string) bool {
	for _, marker := range renderedFolderMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// extractEntries merges the independent heuristics and de-duplicates by
// remote id. selfID is excluded so the folder's own link does not show up
// as a subfolder.
func extractEntries(html, selfID string) []types.RemoteFile {
	type entry struct {
		name     string
		isFolder bool
	}
	merged := map[string]entry{}

	for _, m := range fileLinkPattern.FindAllStringSubmatch(html, -1) {
		if _, ok := merged[m[1]]; !ok {
			merged[m[1]] = entry{}
		}
	}
	for _, m := range folderLinkPattern.FindAllStringSubmatch(html, -1) {
		if m[1] == selfID {
			continue
		}
		e := merged[m[1]]
		e.isFolder = true
		merged[m[1]] = e
	}
	for _, m := range dataIDPattern.FindAllStringSubmatch(html, -1) {
		if m[1] == selfID {
			continue
		}
		if _, ok := merged[m[1]]; !ok {
			merged[m[1]] = entry{}
		}
	}
	for _, m := range jsonArrayPattern.FindAllStringSubmatch(html, -1) {
		id, name := m[1], m[2]
		if id == selfID || strings.HasPrefix(name, "_") || len(name) < 2 {
			continue
		}
		if scrapeUINames[strings.ToLower(name)] {
			continue
		}
		e := merged[id]
		e.name = name
		if !e.isFolder {
			// Without mime information, a missing extension is the best
			// available folder signal for scraped entries.
			e.isFolder = !strings.Contains(name, ".")
		}
		merged[id] = e
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	files := make([]types.RemoteFile, 0, len(ids))
	for _, id := range ids {
		e := merged[id]
		name := e.name
		if name == "" {
			name = id
		}
		files = append(files, types.RemoteFile{
			ID:       id,
			Name:     name,
			IsFolder: e.isFolder,
		})
	}
	return files
}

// apiKeyListing is the highest-confidence strategy: the official Drive API
// with a registered API key, which works for link-shared folders without
// user credentials.
type apiKeyListing struct {
	apiKey     string
	newService func(ctx context.Context) (*drive.Service, error)
}

func newAPIKeyListing(apiKey string) *apiKeyListing {
	return &apiKeyListing{
		apiKey: apiKey,
		newService: func(ctx context.Context) (*drive.Service, error) {
			return drive.NewService(ctx, option.WithAPIKey(apiKey))
		},
	}
}

func (a *apiKeyListing) Name() string { return "drive-api-key" }

func (a *apiKeyListing) List(ctx context.Context, folderID string) ([]types.RemoteFile, bool, error) {
	if a.apiKey == "" {
		return nil, false, fmt.Errorf("no google api key configured")
	}
	srv, err := a.newService(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("unable to build drive client: %v", err)
	}

	var files []types.RemoteFile
	pageToken := ""
	for {
		call := srv.Files.List().
			PageSize(drivePageSize).
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields("nextPageToken, files(id, name, mimeType, size, md5Checksum)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		r, err := call.Do()
		if err != nil {
			return nil, false, classifyDriveError("driveshare.apikey", err)
		}
		for _, f := range r.Files {
			isFolder := f.MimeType == driveFolderMimeType
			if !isFolder && strings.HasPrefix(f.MimeType, driveNativePrefix) {
				continue
			}
			files = append(files, types.RemoteFile{
				ID:       f.Id,
				Name:     f.Name,
				Size:     f.Size,
				Hash:     f.Md5Checksum,
				MimeType: f.MimeType,
				IsFolder: isFolder,
			})
		}
		pageToken = r.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return files, true, nil
}

// embedViewListing fetches the simplified embedded folder view, which is
// semi-structured and more stable than the full Drive page.
type embedViewListing struct {
	client *http.Client
	base   string
}

func (e *embedViewListing) Name() string { return "embed-view" }

func (e *embedViewListing) List(ctx context.Context, folderID string) ([]types.RemoteFile, bool, error) {
	url := fmt.Sprintf("%s/embeddedfolderview?id=%s#list", e.base, folderID)
	html, finalURL, err := fetchPage(ctx, e.client, url)
	if err != nil {
		return nil, false, err
	}
	if err := checkFolderAccess(finalURL, html); err != nil {
		return nil, false, err
	}
	files := extractEntries(html, folderID)
	if len(files) == 0 && !pageLooksRendered(html) {
		return nil, false, nil
	}
	return files, true, nil
}

// pageScrapeListing fetches the full public folder page and applies every
// extraction heuristic. Slowest and least precise, tried last.
type pageScrapeListing struct {
	client *http.Client
	base   string
}

func (p *pageScrapeListing) Name() string { return "page-scrape" }

func (p *pageScrapeListing) List(ctx context.Context, folderID string) ([]types.RemoteFile, bool, error) {
	url := fmt.Sprintf("%s/drive/folders/%s", p.base, folderID)
	html, finalURL, err := fetchPage(ctx, p.client, url)
	if err != nil {
		return nil, false, err
	}
	if err := checkFolderAccess(finalURL, html); err != nil {
		return nil, false, err
	}
	files := extractEntries(html, folderID)
	if len(files) == 0 && !pageLooksRendered(html) {
		return nil, false, nil
	}
	return files, true, nil
}

func fetchPage(ctx context.Context, client *http.Client, url string) (html, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", types.WrapSyncError(types.KindTransientNetwork, "driveshare.fetch", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", types.WrapSyncError(types.KindTransientNetwork, "driveshare.fetch", err)
	}
	finalURL = url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if resp.StatusCode != http.StatusOK {
		if err := checkFolderAccess(finalURL, string(body)); err != nil {
			return "", "", err
		}
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(body), finalURL, nil
}

const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
