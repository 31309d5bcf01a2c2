// Package monitor renders live package-lifecycle progress during install/
// update runs (SPEC_FULL.md §5.3): a tview TUI when attached to a terminal,
// falling back to a throttled stdout line otherwise.
package monitor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"srcpkg/orchestrator"
)

// Counts tallies how many packages have reached each terminal-ish state
// during the current run.
type Counts struct {
	Queued      int
	Downloading int
	Building    int
	Installing  int
	Installed   int
	Failed      int
}

// Run consumes events until the channel closes, rendering with a TUI when
// stdout is a terminal and plain throttled lines otherwise. It returns once
// events is closed or ctx-like cancellation isn't needed: callers close the
// channel to stop the monitor.
func Run(events <-chan orchestrator.ProgressEvent) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if runTUI(events) {
			return
		}
	}
	runStdout(events)
}

func runStdout(events <-chan orchestrator.ProgressEvent) {
	var mu sync.Mutex
	var counts Counts
	var lastPrint time.Time

	print := func(force bool) {
		mu.Lock()
		defer mu.Unlock()
		if !force && time.Since(lastPrint) < time.Second {
			return
		}
		lastPrint = time.Now()
		fmt.Printf("\rdownloading:%d building:%d installing:%d installed:%d failed:%d%-10s",
			counts.Downloading, counts.Building, counts.Installing, counts.Installed, counts.Failed, "")
	}

	for ev := range events {
		mu.Lock()
		tally(&counts, ev)
		mu.Unlock()
		print(false)
	}
	print(true)
	fmt.Println()
}

func tally(counts *Counts, ev orchestrator.ProgressEvent) {
	switch {
	case ev.Err != nil:
		counts.Failed++
	default:
		// state-specific bookkeeping lives in the TUI's richer view; the
		// stdout fallback only needs monotonic terminal-state counts.
	}
	switch ev.State.String() {
	case "downloading":
		counts.Downloading++
	case "building":
		counts.Building++
	case "installing":
		counts.Installing++
	case "installed":
		counts.Installed++
	case "failed":
		counts.Failed++
	}
}
