// Command rootcause diagnoses performance problems in invocation traces.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rootcause/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
