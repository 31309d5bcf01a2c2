package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"srcpkg/monitor"
	"srcpkg/orchestrator"
)

var updateCmd = &cobra.Command{
	Use:   "update <package>...",
	Short: "Update one or more installed packages to their catalog version",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpdate,
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update every installed package that has a newer catalog version",
	Args:  cobra.NoArgs,
	RunE:  runUpdateAll,
}

func runUpdate(cmd *cobra.Command, args []string) error {
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
			if err := a.Orchestrator.Update(context.Background(), name, forceFlag); err != nil {
				fmt.Fprintf(os.Stderr, "update %s: %v\n", name, err)
				failed = append(failed, name)
			}
		}

		close(progress)
		<-done

		if a.Cancellation.Cancelled() {
			os.Exit(orchestrator.ExitCancelled)
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to update: %v", failed)
		}
		return nil
	})
}

func runUpdateAll(cmd *cobra.Command, args []string) error {
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

		result, err := a.Orchestrator.UpdateAll(context.Background())

		close(progress)
		<-done

		if result != nil {
			fmt.Printf("attempted: %d  succeeded: %d  failed: %d\n", result.Attempted, result.Succeeded, result.Failed)
			for name, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", name, e)
			}
		}
		if a.Cancellation.Cancelled() {
			os.Exit(orchestrator.ExitCancelled)
		}
		return err
	})
}
