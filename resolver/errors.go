package resolver

import "fmt"

// ErrCycleDetected is the sentinel wrapped by CycleError.
var ErrCycleDetected = fmt.Errorf("resolver: circular dependency detected")

// CycleError reports that fewer nodes were ordered than exist in the
// graph, i.e. Kahn's algorithm stalled with nodes remaining.
type CycleError struct {
	TotalPackages   int
	OrderedPackages int
	Remaining       []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("resolver: cycle detected: only %d of %d packages ordered (stuck on %v)",
		e.OrderedPackages, e.TotalPackages, e.Remaining)
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }
