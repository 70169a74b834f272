package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deppfellow/graphile-starter/internal/lib/email"
)

func emailPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "email-preview [template]",
		Short: "Render an email template with sample data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := email.TemplateWelcome
			if len(args) == 1 {
				name = email.Template(args[0])
			}
			data, ok := email.PreviewData[name]
			if !ok {
				return fmt.Errorf("unknown email template %q", name)
			}
			return email.Render(cmd.OutOrStdout(), name, data)
		},
	}
}
