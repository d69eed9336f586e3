// Package profile turns an author's profile URL into structured data: the
// rendered page comes from an external capture service, parsing happens
// locally.
package profile

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/fetcher"
)

// Page is a rendered profile page.
type Page struct {
	URL  string
	HTML string
}

// Scraper fetches rendered profile pages and their contact-info documents.
// Profile pages require an authenticated browser session, so rendering is
// delegated to a capture service rather than fetched directly.
type Scraper interface {
	FetchProfile(ctx context.Context, profileURL string) (*Page, error)
	FetchContactPDF(ctx context.Context, pdfURL string) (string, error)
}

// HTTPScraper implements Scraper against a capture service that renders a
// URL and returns the final DOM.
type HTTPScraper struct {
	fetcher fetcher.Fetcher
	baseURL string
	tmpDir  string
}

// NewHTTPScraper creates a scraper talking to the capture service at baseURL.
func NewHTTPScraper(f fetcher.Fetcher, baseURL string) *HTTPScraper {
	return &HTTPScraper{fetcher: f, baseURL: baseURL, tmpDir: os.TempDir()}
}

func (s *HTTPScraper) FetchProfile(ctx context.Context, profileURL string) (*Page, error) {
	endpoint := s.baseURL + "/render?url=" + url.QueryEscape(profileURL)
	body, err := s.fetcher.Download(ctx, endpoint)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: render %s", profileURL)
	}
	defer body.Close() //nolint:errcheck

	html, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read render response for %s", profileURL)
	}
	return &Page{URL: profileURL, HTML: string(html)}, nil
}

// FetchContactPDF downloads a contact-info document and returns the local
// path. The caller owns cleanup.
func (s *HTTPScraper) FetchContactPDF(ctx context.Context, pdfURL string) (string, error) {
	path := filepath.Join(s.tmpDir, "contact-"+uuid.New().String()+".pdf")
	if _, err := s.fetcher.DownloadToFile(ctx, pdfURL, path); err != nil {
		return "", eris.Wrapf(err, "profile: download contact pdf %s", pdfURL)
	}
	return path, nil
}
