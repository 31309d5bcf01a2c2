package pklog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PackageLogger writes the phase-by-phase build transcript for one
// in-progress install, one file per package name under logsPath.
type PackageLogger struct {
	name string
	file *os.File
	mu   sync.Mutex
}

func sanitizeLogName(name string) string {
	return strings.ReplaceAll(name, "/", "___")
}

// NewPackageLogger opens (truncating) the transcript file for name.
func NewPackageLogger(logsPath, name string) (*PackageLogger, error) {
	if err := os.MkdirAll(logsPath, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(logsPath, sanitizeLogName(name)+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &PackageLogger{name: name, file: f}, nil
}

// Close releases the underlying file.
func (pl *PackageLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.file == nil {
		return nil
	}
	return pl.file.Close()
}

// Writer exposes the transcript file as an io.Writer for external-process
// stdout/stderr capture during a build phase.
func (pl *PackageLogger) Writer() *os.File {
	return pl.file
}

func (pl *PackageLogger) WriteHeader() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Install log: %s\n", pl.name)
	fmt.Fprintf(pl.file, "Started: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(pl.file, "%s\n\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WritePhase(phase string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintf(pl.file, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(pl.file, "Phase: %s\n", phase)
	fmt.Fprintf(pl.file, "Time: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintf(pl.file, "%s\n", strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WriteSuccess(duration time.Duration) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintf(pl.file, "\n%s\nINSTALL SUCCESS\nCompleted: %s\nDuration: %s\n%s\n",
		strings.Repeat("=", 70), time.Now().Format(time.RFC3339), duration, strings.Repeat("=", 70))
	pl.file.Sync()
}

func (pl *PackageLogger) WriteFailure(duration time.Duration, reason string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintf(pl.file, "\n%s\nINSTALL FAILED\nReason: %s\nCompleted: %s\nDuration: %s\n%s\n",
		strings.Repeat("=", 70), reason, time.Now().Format(time.RFC3339), duration, strings.Repeat("=", 70))
	pl.file.Sync()
}
