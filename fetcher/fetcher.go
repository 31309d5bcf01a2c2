// Package fetcher downloads a source artifact to the local cache,
// idempotently (spec.md §4.4, "Archive Fetcher"). Grounded on the HTTP
// download/caching pattern in distri's internal/repo/reader.go, generalized
// from a read-through cache to a plain idempotent destination-file fetch.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"srcpkg/pklog"
)

// ErrNetwork is the sentinel wrapped by NetworkError.
var ErrNetwork = fmt.Errorf("fetcher: transport failure")

// NetworkError reports a download failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetcher: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return ErrNetwork }

var httpClient = &http.Client{
	Transport: &http.Transport{MaxIdleConnsPerHost: 10},
}

// Fetch downloads url to destination. If destination already exists as a
// regular file, Fetch returns nil immediately without any network activity
// (the Integrity Verifier still runs downstream). Parent directories are
// created as needed; a partial file is removed on any failure.
func Fetch(ctx context.Context, url, destination string, connectTimeout time.Duration, logger pklog.LibraryLogger) error {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}

	if info, err := os.Stat(destination); err == nil && info.Mode().IsRegular() {
		logger.Debug("fetcher: %s already present, skipping download", destination)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return fetchHTTP(ctx, url, destination, connectTimeout, logger)
	case strings.HasPrefix(url, "ftp://"):
		return fetchFTP(ctx, url, destination, connectTimeout, logger)
	default:
		return &NetworkError{URL: url, Err: fmt.Errorf("unsupported scheme")}
	}
}

func fetchHTTP(ctx context.Context, url, destination string, timeout time.Duration, logger pklog.LibraryLogger) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{URL: url, Err: fmt.Errorf("HTTP status %s", resp.Status)}
	}

	out, err := os.Create(destination)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destination)
		return &NetworkError{URL: url, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(destination)
		return &NetworkError{URL: url, Err: err}
	}

	logger.Info("fetcher: downloaded %s -> %s", url, destination)
	return nil
}
