package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"srcpkg/util"
)

var assumeYes bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached build and source directories",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "don't prompt for confirmation")
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if !assumeYes && !util.AskYN(fmt.Sprintf("Remove everything under %s and %s?", a.Config.BuildsPath, a.Config.SourcesPath), false) {
		fmt.Println("clean cancelled")
		return nil
	}

	for _, dir := range []string{a.Config.BuildsPath, a.Config.SourcesPath} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				fmt.Fprintf(os.Stderr, "clean: %s: %v\n", path, err)
			}
		}
	}

	fmt.Println("clean complete")
	return nil
}
