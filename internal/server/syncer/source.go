package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AlbumSource resolves an external album handle to its current set of item
// locators. Implementations scrape or query the third-party host.
type AlbumSource interface {
	ListCurrentItems(ctx context.Context, albumHandle string) ([]string, error)
}

// ItemFetcher downloads the bytes behind one item locator.
type ItemFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// HTTPAlbumSource resolves album handles against an album listing service:
// GET <base>/albums/<handle> returning a JSON array of item locators.
type HTTPAlbumSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAlbumSource(baseURL string, timeout time.Duration) *HTTPAlbumSource {
	return &HTTPAlbumSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPAlbumSource) ListCurrentItems(ctx context.Context, albumHandle string) ([]string, error) {
	endpoint := s.baseURL + "/albums/" + url.PathEscape(albumHandle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// A handle the host no longer knows reads as a deleted album.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var locators []string
	if err := json.NewDecoder(resp.Body).Decode(&locators); err != nil {
		return nil, fmt.Errorf("decoding album listing: %w", err)
	}
	return locators, nil
}

// HTTPFetcher fetches item bytes over plain HTTP with a bounded per-request
// timeout, so a hung album host cannot stall a diff run.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
