package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ripkitten-co/procview/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "procview:", err)
		os.Exit(cli.ExitCode(err))
	}
}
