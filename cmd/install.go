package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"srcpkg/monitor"
	"srcpkg/orchestrator"
)

var installCmd = &cobra.Command{
	Use:   "install <package>...",
	Short: "Install one or more packages and their dependencies",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stop := a.Cancellation.Watch()
	defer stop()

	return a.withLock(func() error {
		progress := make(chan orchestrator.ProgressEvent, 64)
		a.Orchestrator.Progress = progress
		done := make(chan struct{})
		go func() { monitor.Run(progress); close(done) }()

		var failed []string
		for _, name := range args {
			if a.Cancellation.Cancelled() {
				break
			}
			if err := a.Orchestrator.Install(context.Background(), name, forceFlag); err != nil {
				fmt.Fprintf(os.Stderr, "install %s: %v\n", name, err)
				failed = append(failed, name)
			}
		}

		close(progress)
		<-done

		if a.Cancellation.Cancelled() {
			os.Exit(orchestrator.ExitCancelled)
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to install: %v", failed)
		}
		return nil
	})
}
