package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"srcpkg/db/buildhistory"
	"srcpkg/util"
)

var verifyFlag bool

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List installed packages, optionally filtered by a name substring",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&verifyFlag, "verify", false, "flag packages whose on-disk footprint has drifted since install")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var pattern string
	if len(args) == 1 {
		pattern = args[0]
	}

	entries, err := a.Orchestrator.DB.All()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if pattern != "" && !strings.Contains(e.Name, pattern) {
			continue
		}
		line := fmt.Sprintf("%-24s %-12s %-12s %10s", e.Name, e.Version, e.State, util.FormatBytes(e.InstalledSize))
		if verifyFlag && a.BuildHistory != nil {
			if crc, err := buildhistory.ComputeFileListCRC(e.FileList); err == nil {
				if needs, verr := a.BuildHistory.NeedsVerification(e.Name, crc); verr == nil && needs {
					line += "  [DRIFTED]"
				}
			}
		}
		fmt.Println(line)
	}
	return nil
}
