package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <schema-file>",
		Short: "Validate a schema file without touching the database",
		Long: `Parse and validate a schema configuration file.

Checks the YAML structure, column types, header-sourced columns, and
app table references. Exits 1 if the schema is invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// checkResult is the JSON payload for a successful check.
type checkResult struct {
	Tables int `json:"tables"`
	Apps   int `json:"apps"`
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	sch, err := loadSchemaFile(path)
	if err != nil {
		_ = formatter.Error(err.Error())
		return err
	}

	if opts.Format == "json" {
		return formatter.Success(checkResult{Tables: len(sch.Tables), Apps: len(sch.Apps)})
	}

	ok := color.New(color.FgGreen).Sprint("ok")
	out := cmd.OutOrStdout()
	for _, name := range sch.TableNames() {
		table := sch.Tables[name]
		fmt.Fprintf(out, "%s  table %s (%d columns)\n", ok, name, len(table.Columns))
	}
	for _, app := range sch.Apps {
		fmt.Fprintf(out, "%s  app %s (%d tables)\n", ok, app.ID, len(app.Tables))
	}
	fmt.Fprintf(out, "schema valid: %d tables, %d apps\n", len(sch.Tables), len(sch.Apps))
	return nil
}
