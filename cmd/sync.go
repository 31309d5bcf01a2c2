package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"srcpkg/catalog"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync every enabled repository's local catalog mirror",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	store := catalog.New(a.Config, nil)
	if err := store.Sync(context.Background()); err != nil {
		return err
	}
	fmt.Println("sync complete")
	return nil
}
