// Command docqa answers questions about a directory of documents. It parses
// the documents, keeps a persisted vector index over them, and grounds every
// answer on the retrieved fragments.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
