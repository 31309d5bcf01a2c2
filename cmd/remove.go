package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <package>...",
	Short: "Remove one or more installed packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return a.withLock(func() error {
		var failed []string
		for _, name := range args {
			if err := a.Orchestrator.Remove(context.Background(), name, forceFlag); err != nil {
				fmt.Fprintf(os.Stderr, "remove %s: %v\n", name, err)
				failed = append(failed, name)
				continue
			}
			fmt.Printf("removed %s\n", name)
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to remove: %v", failed)
		}
		return nil
	})
}
