package syndicate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/blacktop/syndicate/internal/logutil"
)

// maxFetchBytes bounds how much of a remote asset an adapter will pull into
// memory before a binary re-upload.
const maxFetchBytes = 512 << 20

// KindFromMime derives the media kind from a MIME type.
func KindFromMime(mimeType string) (MediaKind, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage, nil
	case strings.HasPrefix(mt, "video/"):
		return KindVideo, nil
	}
	return "", fmt.Errorf("unsupported media type %q", mimeType)
}

// KindFromURL derives the media kind from a URL's file extension.
func KindFromURL(rawURL string) (MediaKind, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse media url: %w", err)
	}
	switch strings.ToLower(path.Ext(parsed.Path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return KindImage, nil
	case ".mp4", ".mov", ".m4v", ".webm":
		return KindVideo, nil
	}
	return "", fmt.Errorf("cannot derive media kind from url %q", rawURL)
}

// SkippedMedia records one media item dropped during a per-item loop. These
// are kept for logs and debugging, never surfaced in DestinationResult.
type SkippedMedia struct {
	Index  int
	Reason string
}

// Normalize returns the items with every entry resolved to a publicly
// fetchable URL, uploading bytes-backed items through the store. Items whose
// upload fails are dropped, not fatal: callers that require media must
// re-check the returned length themselves.
func Normalize(ctx context.Context, items []MediaItem, store ObjectStore) ([]MediaItem, []SkippedMedia) {
	out := make([]MediaItem, 0, len(items))
	var skipped []SkippedMedia
	for i, item := range items {
		if item.Remote() {
			out = append(out, item)
			continue
		}
		if store == nil {
			skipped = append(skipped, SkippedMedia{Index: i, Reason: "no object store configured"})
			logutil.Errorf("media %d skipped: no object store configured", i)
			continue
		}
		publicURL, err := store.Upload(ctx, item.Data, item.MimeType, item.Kind)
		if err != nil {
			skipped = append(skipped, SkippedMedia{Index: i, Reason: err.Error()})
			logutil.Errorf("media %d upload failed, skipping: %v", i, err)
			continue
		}
		logutil.Debugf("media %d normalized: kind=%s url=%s", i, item.Kind, publicURL)
		item.URL = publicURL
		out = append(out, item)
	}
	return out, skipped
}

// FetchBytes resolves an item to raw bytes, downloading URL-backed items.
// Destinations that transfer binary payloads use it as the inverse of
// Normalize.
func FetchBytes(ctx context.Context, client *http.Client, item MediaItem) ([]byte, string, error) {
	if !item.Remote() {
		return item.Data, item.MimeType, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media: unexpected status %d for %s", resp.StatusCode, item.URL)
	}
	data, err := readAllLimit(resp.Body, maxFetchBytes)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// readAllLimit reads the whole stream, failing when it exceeds limit bytes
// rather than silently truncating the payload.
func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("payload exceeds the %d byte cap", limit)
	}
	return data, nil
}
