package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/tools"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool catalog",
	}
	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the builtin tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := catalog.NewRegistry(log)
			if err := tools.RegisterBuiltins(reg); err != nil {
				return err
			}

			for _, cat := range catalog.KnownCategories {
				for _, desc := range reg.ByCategory(cat) {
					required := desc.RequiredParams()
					line := fmt.Sprintf("%-18s %-12s %s", desc.Name, desc.Category, desc.Description)
					if len(required) > 0 {
						line += fmt.Sprintf(" (richiede: %s)", strings.Join(required, ", "))
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}
