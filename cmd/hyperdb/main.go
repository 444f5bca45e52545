// Command hyperdb stores and queries typed hypergraphs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/hyperdb/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Command failures are already reported through the output formatter.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Err == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
