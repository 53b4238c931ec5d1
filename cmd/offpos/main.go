// Command offpos is the point-of-sale sync core's command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/offpos/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
