// Package extractor unpacks a downloaded source archive into a build
// workspace, stripping the outermost directory component (spec.md §4.5).
package extractor

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"

	"srcpkg/procexec"
)

// ErrUnsupportedFormat is the sentinel wrapped by UnsupportedFormatError.
var ErrUnsupportedFormat = fmt.Errorf("extractor: unsupported archive format")

// UnsupportedFormatError reports an archive suffix with no registered handler.
type UnsupportedFormatError struct {
	Archive string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("extractor: unsupported archive format: %s", e.Archive)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// ErrExtract is the sentinel wrapped by ExtractError.
var ErrExtract = fmt.Errorf("extractor: extraction failed")

// ExtractError reports a failure partway through extraction.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extractor: %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error { return ErrExtract }

// Extract unpacks archive into targetDir, dispatching on suffix. Every tar
// variant strips the outermost directory component so targetDir directly
// contains the project tree (spec.md §4.5, §8 "Extractor" testable property).
func Extract(ctx context.Context, archive, targetDir string, buildTimeout time.Duration) error {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}

	lower := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTarGz(archive, targetDir)
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return extractTarBz2(archive, targetDir)
	case strings.HasSuffix(lower, ".tar.xz"):
		return extractTarXz(ctx, archive, targetDir, buildTimeout)
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(archive, targetDir)
	default:
		return &UnsupportedFormatError{Archive: archive}
	}
}

func extractTarGz(archive, targetDir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}
	defer gz.Close()

	return extractTarStream(archive, tar.NewReader(gz), targetDir)
}

func extractTarBz2(archive, targetDir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}
	defer f.Close()

	return extractTarStream(archive, tar.NewReader(bzip2.NewReader(f)), targetDir)
}

// extractTarXz shells out to xz(1) to decompress, since no xz-decoding
// library appears anywhere in the retrieved corpus. This is the same
// exec-an-external-tool convention the teacher uses throughout its build
// phases for tools it does not reimplement in Go.
func extractTarXz(ctx context.Context, archive, targetDir string, buildTimeout time.Duration) error {
	decompressed := strings.TrimSuffix(archive, ".xz") + ".tmp-decompressed"
	out, err := os.Create(decompressed)
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}
	defer os.Remove(decompressed)

	_, err = procexec.Run(ctx, &procexec.Command{
		Path:    "xz",
		Args:    []string{"-dc", archive},
		Stdout:  out,
		Timeout: buildTimeout,
	})
	out.Close()
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}

	f, err := os.Open(decompressed)
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}
	defer f.Close()

	return extractTarStream(archive, tar.NewReader(f), targetDir)
}

// extractTarStream writes every entry from r into targetDir after
// discarding the first path component of each header name.
func extractTarStream(archive string, r *tar.Reader, targetDir string) error {
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ExtractError{Archive: archive, Err: err}
		}

		rel := stripFirstComponent(hdr.Name)
		if rel == "" {
			continue
		}
		dest := filepath.Join(targetDir, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(hdr.Mode)); err != nil {
				return &ExtractError{Archive: archive, Err: err}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return &ExtractError{Archive: archive, Err: err}
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return &ExtractError{Archive: archive, Err: err}
			}
			if _, err := io.Copy(out, r); err != nil {
				out.Close()
				return &ExtractError{Archive: archive, Err: err}
			}
			out.Close()
			os.Chtimes(dest, hdr.ModTime, hdr.ModTime)
		case tar.TypeSymlink:
			os.MkdirAll(filepath.Dir(dest), 0755)
			os.Symlink(hdr.Linkname, dest)
		}
	}
}

func extractZip(archive, targetDir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return &ExtractError{Archive: archive, Err: err}
	}
	defer r.Close()

	for _, f := range r.File {
		rel := stripFirstComponent(f.Name)
		if rel == "" {
			continue
		}
		dest := filepath.Join(targetDir, rel)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, f.Mode()); err != nil {
				return &ExtractError{Archive: archive, Err: err}
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return &ExtractError{Archive: archive, Err: err}
		}
		rc, err := f.Open()
		if err != nil {
			return &ExtractError{Archive: archive, Err: err}
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return &ExtractError{Archive: archive, Err: err}
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return &ExtractError{Archive: archive, Err: copyErr}
		}
	}
	return nil
}

func stripFirstComponent(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	idx := strings.Index(name, "/")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
