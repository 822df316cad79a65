// Command finrag answers investment questions from a local corpus of books
// and market snapshots, once from the command line (`finrag ask`) or over
// HTTP (`finrag serve`).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/finrag-go/cmd/finrag/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "finrag: %v\n", err)
		os.Exit(1)
	}
}
