// Command fsmstack validates, runs, traces and tests stack-based state
// machines defined in CUE.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fsmstack/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
