package orchestrator

import "fmt"

// ErrConflict is the sentinel wrapped by ConflictError.
var ErrConflict = fmt.Errorf("orchestrator: conflicting package installed")

// ConflictError reports that an installed package appears in the
// candidate's declared conflicts.
type ConflictError struct {
	Name       string
	Conflicts  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("orchestrator: %s conflicts with installed package %s", e.Name, e.Conflicts)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ErrDependency is the sentinel wrapped by DependencyError.
var ErrDependency = fmt.Errorf("orchestrator: blocked by dependents")

// DependencyError reports that removal was blocked by dependents.
type DependencyError struct {
	Name       string
	Dependents []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("orchestrator: cannot remove %s: depended on by %v", e.Name, e.Dependents)
}

func (e *DependencyError) Unwrap() error { return ErrDependency }

// ErrLocked is the sentinel wrapped by LockedError.
var ErrLocked = fmt.Errorf("orchestrator: lock already held")

// LockedError reports that another orchestrator instance holds the
// advisory lock file.
type LockedError struct {
	Path string
	Err  error
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("orchestrator: lock %s already held: %v", e.Path, e.Err)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// ErrCancelled is the sentinel wrapped by CancelledError.
var ErrCancelled = fmt.Errorf("orchestrator: cancelled by signal")

// CancelledError reports that a cancellation signal was observed between
// phases.
type CancelledError struct {
	Name string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("orchestrator: %s: cancelled", e.Name)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }
