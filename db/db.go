// Package db persists installed package entries and supports add/remove/
// find/reverse-lookup (spec.md §4.8, "Installed-Packages Database").
package db

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/renameio"

	"srcpkg/pklog"
)

// State is one of the InstalledEntry lifecycle states of spec.md §3. The
// integer values match the state ordinals of spec.md §6's file format
// exactly.
type State int

const (
	StateUnknown State = iota
	StateAvailable
	StateDownloading
	StateBuilding
	StateInstalling
	StateInstalled
	StateFailed
	StateBroken
)

var stateNames = map[State]string{
	StateUnknown:      "unknown",
	StateAvailable:    "available",
	StateDownloading:  "downloading",
	StateBuilding:     "building",
	StateInstalling:   "installing",
	StateInstalled:    "installed",
	StateFailed:       "failed",
	StateBroken:       "broken",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// InstalledEntry is the mutable, persistent row the Database owns, per
// spec.md §3.
type InstalledEntry struct {
	Name          string
	Version       string
	Description   string
	InstalledAt   int64
	InstalledSize int64
	State         State
	FileList      []string
}

// Database is the process-wide Installed-Packages Database. It is loaded
// lazily, mutated in memory, and persisted to disk after every mutation,
// per spec.md §4.8.
type Database struct {
	path string

	mu      sync.Mutex
	entries map[string]*InstalledEntry
	order   []string // preserves insertion/file order for All()
	loaded  bool
	logger  pklog.LibraryLogger
}

// New creates a Database bound to path. The file is not read until the
// first operation (lazy load, per spec.md §4.8).
func New(path string, logger pklog.LibraryLogger) *Database {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}
	return &Database{path: path, entries: make(map[string]*InstalledEntry), logger: logger}
}

func (d *Database) ensureLoaded() error {
	if d.loaded {
		return nil
	}
	d.loaded = true

	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			d.logger.Warn("db: discarding malformed line: %q", line)
			continue
		}
		d.entries[entry.Name] = entry
		d.order = append(d.order, entry.Name)
	}
	return scanner.Err()
}

// parseLine is tolerant: lines with three or more tab-separated fields are
// accepted, with defaults for any trailing fields omitted.
func parseLine(line string) (*InstalledEntry, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return nil, false
	}
	if fields[0] == "" {
		return nil, false
	}

	entry := &InstalledEntry{Name: fields[0], Version: fields[1], Description: fields[2]}
	if len(fields) > 3 {
		if v, err := strconv.ParseInt(fields[3], 10, 64); err == nil {
			entry.InstalledAt = v
		}
	}
	if len(fields) > 4 {
		if v, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
			entry.InstalledSize = v
		}
	}
	if len(fields) > 5 {
		if v, err := strconv.Atoi(fields[5]); err == nil {
			entry.State = State(v)
		}
	}
	return entry, true
}

func formatLine(e *InstalledEntry) string {
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%d",
		e.Name, e.Version, e.Description, e.InstalledAt, e.InstalledSize, int(e.State))
}

// persist atomically rewrites the database file to reflect in-memory
// state exactly, via renameio so a crash mid-save cannot corrupt it.
func (d *Database) persist() error {
	var b strings.Builder
	fmt.Fprintf(&b, "# srcpkg installed-packages database\n")
	for _, name := range d.order {
		entry, ok := d.entries[name]
		if !ok {
			continue
		}
		b.WriteString(formatLine(entry))
		b.WriteByte('\n')
	}
	return renameio.WriteFile(d.path, []byte(b.String()), 0644)
}

// Add overwrites any existing row with the same name and persists.
func (d *Database) Add(entry InstalledEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(); err != nil {
		return err
	}

	if _, exists := d.entries[entry.Name]; !exists {
		d.order = append(d.order, entry.Name)
	}
	stored := entry
	d.entries[entry.Name] = &stored

	return d.persist()
}

// Remove deletes the row for name if present and persists; a missing row
// is not an error.
func (d *Database) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(); err != nil {
		return err
	}

	if _, exists := d.entries[name]; !exists {
		return nil
	}
	delete(d.entries, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return d.persist()
}

// Find returns the row for name, or nil if absent.
func (d *Database) Find(name string) (*InstalledEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}
	entry, ok := d.entries[name]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

// All returns every row, in file order.
func (d *Database) All() ([]InstalledEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]InstalledEntry, 0, len(d.order))
	for _, name := range d.order {
		if entry, ok := d.entries[name]; ok {
			out = append(out, *entry)
		}
	}
	return out, nil
}

// SetState updates the state field for name and persists.
func (d *Database) SetState(name string, state State) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(); err != nil {
		return err
	}
	entry, ok := d.entries[name]
	if !ok {
		return fmt.Errorf("db: no entry for %s", name)
	}
	entry.State = state
	return d.persist()
}
