// Package cmd wires the srcpkg cobra CLI to the orchestrator. Every
// subcommand's Run stays a thin adapter: argument parsing and output
// formatting only, business logic lives in orchestrator/catalog/resolver.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"srcpkg/config"
)

var (
	configDir string
	rootDir   string
	forceFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "srcpkg",
	Short: "Source-based package manager",
}

// Execute runs the CLI, returning the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if ce, ok := err.(interface{ ExitCode() int }); ok {
			return ce.ExitCode()
		}
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default /etc/srcpkg)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "filesystem root to operate under (default /)")
	rootCmd.PersistentFlags().BoolVarP(&forceFlag, "force", "f", false, "override conflict/version/dependent checks")

	rootCmd.AddCommand(installCmd, removeCmd, updateCmd, updateAllCmd, listCmd, queryCmd, searchCmd, syncCmd, cleanCmd, monitorCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configDir, rootDir)
}
