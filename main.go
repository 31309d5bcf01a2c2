package main

import (
	"os"

	"srcpkg/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
