package pklog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger manages the set of transcript log files srcpkg writes to
// <RootDir>/var/log/srcpkg/ over the lifetime of one orchestrator run.
type Logger struct {
	logsPath    string
	resultsFile *os.File
	successFile *os.File
	failureFile *os.File
	skippedFile *os.File
	debugFile   *os.File
	mu          sync.Mutex
}

// NewLogger creates (truncating) every log file under logsPath.
func NewLogger(logsPath string) (*Logger, error) {
	if err := os.MkdirAll(logsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	l := &Logger{logsPath: logsPath}

	var err error
	if l.resultsFile, err = os.Create(filepath.Join(logsPath, "00_last_results.log")); err != nil {
		return nil, err
	}
	if l.successFile, err = os.Create(filepath.Join(logsPath, "01_success.log")); err != nil {
		return nil, err
	}
	if l.failureFile, err = os.Create(filepath.Join(logsPath, "02_failure.log")); err != nil {
		return nil, err
	}
	if l.skippedFile, err = os.Create(filepath.Join(logsPath, "03_skipped.log")); err != nil {
		return nil, err
	}
	if l.debugFile, err = os.Create(filepath.Join(logsPath, "04_debug.log")); err != nil {
		return nil, err
	}

	l.writeHeaders()
	return l, nil
}

// Close releases every open log file. Safe to call once.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range []*os.File{l.resultsFile, l.successFile, l.failureFile, l.skippedFile, l.debugFile} {
		if f != nil {
			f.Close()
		}
	}
}

func (l *Logger) writeHeaders() {
	timestamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(l.resultsFile, "srcpkg run log - %s\n%s\n\n", timestamp, strings.Repeat("=", 70))
	fmt.Fprintf(l.successFile, "Successful installs - %s\n\n", timestamp)
	fmt.Fprintf(l.failureFile, "Failed installs - %s\n\n", timestamp)
	fmt.Fprintf(l.skippedFile, "Skipped (already installed) - %s\n\n", timestamp)
	fmt.Fprintf(l.debugFile, "Debug log - %s\n\n", timestamp)
}

// Success records that name finished with state installed.
func (l *Logger) Success(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] SUCCESS: %s\n", ts, name)
	fmt.Fprintf(l.successFile, "%s\n", name)
	l.resultsFile.Sync()
	l.successFile.Sync()
}

// Failed records a failed install at the given phase.
func (l *Logger) Failed(name, phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] FAILED: %s (phase: %s)\n", ts, name, phase)
	fmt.Fprintf(l.failureFile, "%s (phase: %s)\n", name, phase)
	l.resultsFile.Sync()
	l.failureFile.Sync()
}

// Skipped records an already-installed, force=false no-op.
func (l *Logger) Skipped(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] SKIPPED: %s\n", ts, name)
	fmt.Fprintf(l.skippedFile, "%s\n", name)
	l.resultsFile.Sync()
	l.skippedFile.Sync()
}

// Info writes an informational line to the results log.
func (l *Logger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] INFO: %s\n", ts, fmt.Sprintf(format, args...))
	l.resultsFile.Sync()
}

// Debug writes to the debug log only.
func (l *Logger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(l.debugFile, "[%s] %s\n", ts, fmt.Sprintf(format, args...))
	l.debugFile.Sync()
}

// Warn writes to both the results and debug logs.
func (l *Logger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	msg := fmt.Sprintf("[%s] WARN: %s\n", ts, fmt.Sprintf(format, args...))
	l.resultsFile.WriteString(msg)
	l.debugFile.WriteString(msg)
	l.resultsFile.Sync()
	l.debugFile.Sync()
}

// Error writes to both the results and debug logs.
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	msg := fmt.Sprintf("[%s] ERROR: %s\n", ts, fmt.Sprintf(format, args...))
	l.resultsFile.WriteString(msg)
	l.debugFile.WriteString(msg)
	l.resultsFile.Sync()
	l.debugFile.Sync()
}

// WriteSummary appends an update_all / bulk-run summary to the results log.
func (l *Logger) WriteSummary(total, success, failed, skipped int, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.resultsFile, "\n%s\nRUN SUMMARY\n%s\n", strings.Repeat("=", 70), strings.Repeat("=", 70))
	fmt.Fprintf(l.resultsFile, "Total packages: %d\n", total)
	fmt.Fprintf(l.resultsFile, "Success:        %d\n", success)
	fmt.Fprintf(l.resultsFile, "Failed:         %d\n", failed)
	fmt.Fprintf(l.resultsFile, "Skipped:        %d\n", skipped)
	fmt.Fprintf(l.resultsFile, "Duration:       %s\n", duration)
	fmt.Fprintf(l.resultsFile, "%s\n", strings.Repeat("=", 70))
	l.resultsFile.Sync()
}
