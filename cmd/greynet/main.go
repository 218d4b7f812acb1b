// Command greynet scores customers, transactions and security alerts
// against the standard constraint catalog.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/greynet/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "greynet: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
