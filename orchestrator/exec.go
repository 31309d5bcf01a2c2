package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"srcpkg/procexec"
)

func newBuildUUID() string {
	return uuid.NewString()
}

// splitCommand is the same argument-vector-only split buildrunner uses
// for build_cmd/install_cmd — post_install_cmd gets the identical
// no-shell treatment (spec.md §9).
func splitCommand(s string) ([]string, error) {
	return shlex.Split(s)
}

func runShellessCommand(ctx context.Context, argv []string, timeout time.Duration) error {
	cmd := &procexec.Command{Path: argv[0], Args: argv[1:], Timeout: timeout}
	result, err := procexec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s exited with status %d", argv[0], result.ExitCode)
	}
	return nil
}
