package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/core"
	"github.com/modindex/modindex/internal/output"
)

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	var (
		outputFlag string
		reposFlag  []string
	)

	c := &cobra.Command{
		Use:   "get DIR NAME [VERSION]",
		Short: "Show one indexed resource",
		Long: `Show one indexed resource. Without VERSION the highest version of NAME
is returned.

Examples:
  modindex get ./repo com.acme.log
  modindex get ./repo com.acme.log 1.2.0 -o json
  modindex get ./repo com.acme.log --repo ./vendor-repo`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(c *cobra.Command, args []string) error {
			version := ""
			if len(args) == 3 {
				version = args[2]
			}
			return runGet(c, append([]string{args[0]}, reposFlag...), args[1], version, outputFlag)
		},
	}

	c.Flags().StringVarP(&outputFlag, "output", "o", "yaml", "Output format: yaml, json")
	c.Flags().StringSliceVar(&reposFlag, "repo", nil, "Additional repository directories to search")
	return c
}

func runGet(c *cobra.Command, dirs []string, name, version, outputFmt string) error {
	format := output.ParseOutputFormat(outputFmt)
	if format == output.FormatTable {
		return NewExitError(fmt.Errorf("invalid output format %q (valid: yaml, json)", outputFmt), ExitValidationError)
	}

	sess, err := openRepositories(c, dirs)
	if err != nil {
		return err
	}
	defer sess.Close()

	var r *core.Resource
	if version == "" {
		r, err = sess.admin.LatestResource(name)
	} else {
		r, err = sess.admin.GetResource(name, version)
	}
	if err != nil {
		return exitError(err)
	}
	return output.WriteStructured(c.OutOrStdout(), r, format)
}

// openRepositories creates a sync session and registers every directory.
// A failed build is fatal; queries would silently miss its resources.
func openRepositories(c *cobra.Command, dirs []string) (*session, error) {
	ctx := commandContext(c)

	sess, err := newSession(sessionOpts{Policy: build.PolicySync})
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if _, err := sess.admin.AddRepository(ctx, dir); err != nil {
			sess.Close()
			return nil, exitError(err)
		}
	}
	return sess, nil
}
