// Command erag is the entry point for the inventory and sales question
// answering service. It provides a CLI interface (via Cobra) and an HTTP
// server for the web frontend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/estoque-rag/cmd/erag/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
