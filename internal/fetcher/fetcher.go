package fetcher

import (
	"context"
	"io"
)

// Fetcher is the download surface the ingest and profile layers depend on.
// *HTTPFetcher is the production implementation.
type Fetcher interface {
	// Download fetches url and returns the response body for streaming.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches url into path and returns the bytes written.
	// Contact PDFs go through here because OCR reads them from disk.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// HeadETag returns the ETag advertised for url, "" when absent.
	HeadETag(ctx context.Context, url string) (string, error)

	// DownloadIfChanged fetches url only when its ETag differs from etag.
	// Returns (body, newETag, changed, error); body is nil when the drop
	// is unchanged, letting a scheduled sync skip re-ingesting it.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
