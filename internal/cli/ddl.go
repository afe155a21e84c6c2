package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"evsink/internal/store"
)

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ddl <schema-file>",
		Short: "Print the statements reconciliation would issue",
		Long: `Print the CREATE TABLE and CREATE INDEX statements that would be
issued for every table in the schema file, in deterministic order.

Useful for reviewing what "serve" will do to an empty database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(args[0], cmd)
		},
	}
	return cmd
}

func runDDL(path string, cmd *cobra.Command) error {
	sch, err := loadSchemaFile(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range sch.TableNames() {
		table := sch.Tables[name]
		fmt.Fprintf(out, "%s;\n", store.CreateTableSQL(table))
		for _, stmt := range store.IndexSQL(table) {
			fmt.Fprintf(out, "%s;\n", stmt)
		}
	}
	return nil
}
