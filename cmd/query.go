package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"srcpkg/util"
)

var queryCmd = &cobra.Command{
	Use:   "query <package>",
	Short: "Show catalog and installed-state detail for a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	name := args[0]

	def, defErr := a.Orchestrator.Loader.Load(name)
	if defErr != nil {
		fmt.Printf("catalog: %v\n", defErr)
	} else {
		fmt.Printf("name:         %s\n", def.Name)
		fmt.Printf("version:      %s\n", def.Version)
		fmt.Printf("description:  %s\n", def.Description)
		fmt.Printf("maintainer:   %s\n", def.Maintainer)
		fmt.Printf("license:      %s\n", def.License)
		fmt.Printf("build system: %s\n", def.BuildSystem)
		fmt.Printf("dependencies: %v\n", def.Dependencies)
		fmt.Printf("conflicts:    %v\n", def.Conflicts)
	}

	entry, err := a.Orchestrator.DB.Find(name)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Println("installed:    no")
		return nil
	}
	fmt.Printf("installed:    yes (%s, %s, %s)\n", entry.Version, entry.State, util.FormatBytes(entry.InstalledSize))
	return nil
}
