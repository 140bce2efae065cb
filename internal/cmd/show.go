package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/store"
)

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	var outputFlag string

	c := &cobra.Command{
		Use:   "show DIR",
		Short: "List the resources indexed for a directory",
		Long: `List the resources indexed for a directory, building the index first
when it is stale.

Examples:
  modindex show ./repo
  modindex show ./repo -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runShow(c, args[0], outputFlag)
		},
	}

	c.Flags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, yaml, json")
	return c
}

func runShow(c *cobra.Command, dir, outputFmt string) error {
	format := output.OutputFormat(outputFmt)
	if !format.Valid() {
		return NewExitError(fmt.Errorf("invalid output format %q (valid: table, yaml, json)", outputFmt), ExitValidationError)
	}

	ctx := commandContext(c)

	sess, err := newSession(sessionOpts{Policy: build.PolicySync})
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.admin.AddRepository(ctx, dir)
	if err != nil {
		return exitError(err)
	}

	w := c.OutOrStdout()
	if format != output.FormatTable {
		return output.WriteStructured(w, store.NewDocument(res.Index), format)
	}

	idx := res.Index
	if idx.IsEmpty() {
		fmt.Fprintln(w, "No resources indexed.")
	} else {
		fmt.Fprint(w, output.RenderResourceTable(resourceRows(idx.Resources())))
		fmt.Fprintln(w)
	}

	if skipped := idx.Skipped(); len(skipped) > 0 {
		rows := make([]output.SkippedRow, 0, len(skipped))
		for _, s := range skipped {
			reason := s.Reason
			if s.ConflictWith != "" {
				reason += " with " + s.ConflictWith
			}
			rows = append(rows, output.SkippedRow{Path: s.Path, Reason: reason})
		}
		fmt.Fprintln(w)
		fmt.Fprint(w, output.RenderSkippedTable(rows))
		fmt.Fprintln(w)
	}
	return nil
}
