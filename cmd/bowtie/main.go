// Command bowtie runs JSON Schema test cases against many implementations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bowtie/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bowtie: %v\n", err)
	}
	return cli.GetExitCode(err)
}
