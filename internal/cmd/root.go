package cmd

import (
	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/config"
	"github.com/modindex/modindex/internal/output"
)

var (
	// Global flags
	configFlag     string
	cacheDirFlag   string
	policyFlag     string
	patternFlag    string
	verboseFlag    bool
	timestampsFlag bool

	// Resolved settings (loaded during PersistentPreRunE)
	settings *config.Settings
)

// NewRootCmd creates the root command for the modindex CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modindex",
		Short: "Incremental module repository indexer",
		Long: `modindex builds and maintains a searchable index of the module packages
found under a directory. Rebuilds only re-read packages that changed since
the last build.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeGlobals(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (env: MODINDEX_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Directory for persisted index documents (env: MODINDEX_CACHE_DIR)")
	rootCmd.PersistentFlags().StringVar(&policyFlag, "policy", "", "Build policy: sync, async (env: MODINDEX_BUILD_POLICY)")
	rootCmd.PersistentFlags().StringVar(&patternFlag, "pattern", "", "Glob selecting module packages (env: MODINDEX_PATTERN)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&timestampsFlag, "timestamps", true, "Show timestamps in log output")

	rootCmd.AddCommand(
		NewBuildCmd(),
		NewShowCmd(),
		NewGetCmd(),
		NewDiscoverCmd(),
		NewDiffCmd(),
		NewWatchCmd(),
		NewVersionCmd(),
	)

	return rootCmd
}

// initializeGlobals loads configuration, resolves settings and sets up logging.
func initializeGlobals(cmd *cobra.Command) error {
	cfgPath, err := config.ResolveConfigPath(configFlag)
	if err != nil {
		return NewExitError(err, ExitGeneralError)
	}

	loader := config.NewLoader()
	fileCfg, err := loader.Load(cfgPath.ConfigPath)
	if err != nil {
		return exitError(err)
	}

	resolved, values, err := config.Resolve(loader, fileCfg, config.Flags{
		BuildPolicy: policyFlag,
		CacheDir:    cacheDirFlag,
		Pattern:     patternFlag,
	})
	if err != nil {
		return exitError(err)
	}
	settings = resolved

	// Timestamps: flag (if explicitly set) > config > default (nil = true)
	logCfg := output.LogConfig{Verbose: verboseFlag}
	if cmd.Flags().Changed("timestamps") {
		logCfg.Timestamps = output.BoolPtr(timestampsFlag)
	} else if settings.Timestamps != nil {
		logCfg.Timestamps = settings.Timestamps
	}
	output.SetupLogging(logCfg)

	if verboseFlag {
		output.Debug("initializing CLI", "config", cfgPath.ConfigPath, "configSource", cfgPath.Source)
		config.LogResolvedValues(values)
	}

	return nil
}
