package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"srcpkg/orchestrator"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the active build in another srcpkg process, if any",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

// runMonitor polls the build-history database for a running record written
// by a concurrent `install`/`update` invocation, mirroring the teacher's
// cmd/monitor.go doMonitorBuildDB poll loop.
func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.BuildHistory == nil {
		return fmt.Errorf("build history unavailable, nothing to monitor")
	}

	fmt.Println("Watching for an active build (press Ctrl+C to exit)...")

	cancellation := &orchestrator.CancellationFlag{}
	stop := cancellation.Watch()
	defer stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastUUID := ""
	for !cancellation.Cancelled() {
		rec, err := a.BuildHistory.ActiveRecord()
		if err != nil {
			fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		} else if rec == nil {
			fmt.Printf("\rno active build%-40s", "")
		} else {
			if rec.UUID != lastUUID {
				fmt.Println()
				lastUUID = rec.UUID
			}
			fmt.Printf("\r%s %s  building since %s%-10s", rec.Name, rec.Version,
				rec.StartedAt.Format("15:04:05"), "")
		}
		<-ticker.C
	}
	fmt.Println()
	return nil
}
