package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/output"
)

// NewBuildCmd creates the build command.
func NewBuildCmd() *cobra.Command {
	var asyncFlag bool

	c := &cobra.Command{
		Use:   "build DIR",
		Short: "Build or refresh the index of a directory",
		Long: `Build or refresh the index of a directory.

Only module packages that changed since the last persisted build are read
again. Without a cache directory the index is rebuilt from scratch.

Examples:
  # Build the index of ./repo and persist it
  modindex build ./repo --cache-dir ~/.modindex/cache

  # Schedule the build in the background and wait for it
  modindex build ./repo --async`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runBuild(c, args[0], asyncFlag)
		},
	}

	c.Flags().BoolVar(&asyncFlag, "async", false, "Use the async build policy")
	return c
}

func runBuild(c *cobra.Command, dir string, async bool) error {
	ctx := commandContext(c)

	opts := sessionOpts{}
	if async {
		opts.Policy = build.PolicyAsync
	}
	sess, err := newSession(opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	var res build.Result
	err = output.RunWithSpinner(ctx, func(ctx context.Context) error {
		res = sess.coord.Build(ctx, dir)
		if res.Status != build.StatusScheduled && res.Status != build.StatusInProgress {
			return nil
		}
		fmt.Fprintln(c.OutOrStdout(), output.FormatBuildLine(res.Dir, string(res.Status)))
		var waitErr error
		res, waitErr = sess.coord.Wait(ctx, dir)
		return waitErr
	}, output.WithTitle("Indexing "+dir))
	if err != nil {
		return exitError(err)
	}

	fmt.Fprintln(c.OutOrStdout(), output.FormatBuildLine(res.Dir, string(res.Status)))
	if err := resultError(res); err != nil {
		return err
	}
	if res.Status == build.StatusBuilt {
		fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark(summarizeStats(res.Stats)))
	}
	if st := sess.coord.Store(); st.Persistent() {
		output.Debug("index document", "path", st.PathFor(res.Dir))
	}
	return nil
}
