package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/output"
)

// NewDiscoverCmd creates the discover command.
func NewDiscoverCmd() *cobra.Command {
	var (
		outputFlag string
		reposFlag  []string
	)

	c := &cobra.Command{
		Use:   "discover DIR FILTER",
		Short: "List resources matching a filter",
		Long: `List resources whose properties match a filter expression.

Filters are LDAP-style expressions over the resource properties name,
version and uri.

Examples:
  modindex discover ./repo '(name=com.acme.log)'
  modindex discover ./repo '(&(name=com.acme.*)(version=1.2.0))'`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return runDiscover(c, append([]string{args[0]}, reposFlag...), args[1], outputFlag)
		},
	}

	c.Flags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, yaml, json")
	c.Flags().StringSliceVar(&reposFlag, "repo", nil, "Additional repository directories to search")
	return c
}

func runDiscover(c *cobra.Command, dirs []string, filter, outputFmt string) error {
	format := output.OutputFormat(outputFmt)
	if !format.Valid() {
		return NewExitError(fmt.Errorf("invalid output format %q (valid: table, yaml, json)", outputFmt), ExitValidationError)
	}

	sess, err := openRepositories(c, dirs)
	if err != nil {
		return err
	}
	defer sess.Close()

	found, err := sess.admin.DiscoverResources(filter)
	if err != nil {
		return exitError(err)
	}

	w := c.OutOrStdout()
	if format != output.FormatTable {
		return output.WriteStructured(w, found, format)
	}
	if len(found) == 0 {
		fmt.Fprintln(w, "No matching resources.")
		return nil
	}
	fmt.Fprint(w, output.RenderResourceTable(resourceRows(found)))
	fmt.Fprintln(w)
	return nil
}
