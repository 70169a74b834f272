// Command starter runs the graphile starter server and its tooling.
package main

import (
	"os"

	"github.com/deppfellow/graphile-starter/cmd/starter/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
