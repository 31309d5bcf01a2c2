package buildrunner

import (
	"context"
	"fmt"
	"io"
	"time"

	"srcpkg/procexec"
)

// runCommand executes name/args in dir through procexec, streaming
// combined output to out (nil discards it) and turning a non-zero exit
// into an error.
func runCommand(ctx context.Context, dir, name string, args []string, timeout time.Duration, out io.Writer) error {
	cmd := &procexec.Command{
		Path:    name,
		Args:    args,
		Dir:     dir,
		Stdout:  out,
		Stderr:  out,
		Timeout: timeout,
	}

	result, err := procexec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s exited with status %d", name, result.ExitCode)
	}
	return nil
}
