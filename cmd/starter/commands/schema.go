package commands

import (
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/graphile"
	"github.com/deppfellow/graphile-starter/internal/lib/utils"
)

func schemaCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the GraphQL schema generated from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			conn, err := pgx.Connect(cmd.Context(), cfg.DatabaseDSN())
			if err != nil {
				return fmt.Errorf("failed to connect to the database: %w", err)
			}
			defer conn.Close(cmd.Context())

			cat, err := graphile.Introspect(cmd.Context(), conn, cfg.GraphQL.Schemas)
			if err != nil {
				return err
			}
			return printSchema(cmd.OutOrStdout(), cat, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the introspected catalog as JSON")
	return cmd
}

func printSchema(w io.Writer, cat *graphile.Catalog, asJSON bool) error {
	if asJSON {
		return utils.PrintJSON(w, cat)
	}
	schema, err := graphile.Build(cat)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, schema.SDL)
	return err
}
