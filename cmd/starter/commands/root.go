package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command. serve reports its own startup errors,
// the other commands' errors are printed here.
func Execute() error {
	root := newRootCmd()
	cmd, err := root.ExecuteC()
	if err != nil && cmd.Name() != "serve" {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "starter",
		Short:         "GraphQL over Postgres starter server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), schemaCmd(), emailPreviewCmd())
	return root
}
