package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/store"
)

// NewDiffCmd creates the diff command.
func NewDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff DIR",
		Short: "Show what a rebuild would change in the persisted index",
		Long: `Compare the persisted index of a directory with the result of a fresh
build. Nothing is written.

Examples:
  modindex diff ./repo --cache-dir ~/.modindex/cache`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runDiff(c, args[0])
		},
	}
}

func runDiff(c *cobra.Command, dir string) error {
	ctx := commandContext(c)

	sess, err := newSession(sessionOpts{Policy: build.PolicySync})
	if err != nil {
		return err
	}
	defer sess.Close()

	persisted, found := sess.coord.Index(dir)
	if !found {
		output.Debug("no persisted index, comparing against an empty one", "dir", dir)
	}

	preview := sess.coord.Preview(ctx, dir)
	if err := resultError(preview); err != nil {
		return err
	}

	diff, err := store.Diff(persisted, preview.Index, output.IsTTY())
	if err != nil {
		return exitError(err)
	}

	added := make([]string, 0, len(diff.Added))
	for _, id := range diff.Added {
		added = append(added, id.String())
	}
	removed := make([]string, 0, len(diff.Removed))
	for _, id := range diff.Removed {
		removed = append(removed, id.String())
	}
	modified := make([]output.ModifiedItem, 0, len(diff.Modified))
	for _, m := range diff.Modified {
		modified = append(modified, output.ModifiedItem{Name: m.Identity.String(), Diff: m.Diff})
	}

	fmt.Fprintln(c.OutOrStdout(), output.RenderDiff(added, removed, modified))
	return nil
}
