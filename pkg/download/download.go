package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Downloader streams remote files to disk
type Downloader struct {
	httpClient *http.Client
	userAgent  string
}

// New creates a Downloader. A nil client uses http.DefaultClient.
func New(httpClient *http.Client, userAgent string) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Downloader{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Download fetches url into path and returns the number of bytes written.
// The file is written in place: an interrupted download leaves a truncated file.
func (d *Downloader) Download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download of %s returned status %d", url, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return n, nil
}
