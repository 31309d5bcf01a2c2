package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetch_DownloadsAndIsIdempotent(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "archive.tar.gz")

	if err := Fetch(context.Background(), srv.URL, dest, 5*time.Second, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(content) != "archive-bytes" {
		t.Errorf("content = %q", content)
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1", requests)
	}

	// Second call: destination exists, must not hit the network again.
	if err := Fetch(context.Background(), srv.URL, dest, 5*time.Second, nil); err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("requests after idempotent re-fetch = %d, want 1", requests)
	}
}

func TestFetch_NotFoundReturnsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "archive.tar.gz")
	err := Fetch(context.Background(), srv.URL, dest, 5*time.Second, nil)
	if err == nil {
		t.Fatal("expected NetworkError for 404")
	}
	if _, ok := err.(*NetworkError); !ok {
		t.Errorf("expected *NetworkError, got %T", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("partial file should not remain after a failed fetch")
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "archive.tar.gz")
	err := Fetch(context.Background(), "file:///etc/passwd", dest, time.Second, nil)
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
