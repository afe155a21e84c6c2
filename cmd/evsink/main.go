package main

import (
	"fmt"
	"os"

	"evsink/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
