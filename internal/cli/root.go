// Package cli implements the medlens command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medlens/medlens/internal/app"
	"github.com/medlens/medlens/internal/config"
	"github.com/medlens/medlens/internal/logging"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	cacheDir   string
	verbose    bool
	jsonLogs   bool
	strict     bool
}

// NewRootCmd creates the root cobra command for the medlens CLI.
func NewRootCmd(version string) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:     "medlens",
		Short:   "Explore public healthcare datasets",
		Long:    "medlens: search, fetch, cache, and run SQL over public CMS healthcare datasets.",
		Version: version,
		Example: `  # Find datasets about hospital quality
  medlens search "hospital ratings"

  # Inspect a dataset's columns and join partners
  medlens describe xubh-q36u

  # Fetch California hospitals as CSV
  medlens fetch xubh-q36u -f state=CA -o csv

  # Load a dataset and query it with SQL
  medlens sql --load xubh-q36u "SELECT state, COUNT(*) FROM hospital_general_information GROUP BY state"

  # Run the agent tool server on stdio
  medlens serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to medlens.toml (default: no config file)")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "override the cache directory")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&flags.jsonLogs, "json-logs", false, "emit logs as JSON")
	pf.BoolVar(&flags.strict, "strict-config", false, "treat unknown config keys as errors")

	cmd.AddCommand(
		newSearchCmd(&flags),
		newDatasetsCmd(&flags),
		newDescribeCmd(&flags),
		newFetchCmd(&flags),
		newProviderCmd(&flags),
		newSQLCmd(&flags),
		newLoadCmd(&flags),
		newCacheCmd(&flags),
		newServeCmd(&flags),
	)

	return cmd
}

// newApp resolves configuration and builds the application for one command
// invocation. Config warnings go to stderr so stdout stays parseable.
func newApp(cmd *cobra.Command, flags *rootFlags) (*app.App, error) {
	res, err := config.Load(flags.configPath, config.LoadOptions{Strict: flags.strict})
	if err != nil {
		return nil, err
	}
	for _, warning := range res.Warnings {
		cmd.PrintErrln("warning:", warning)
	}

	cfg := res.Config
	if flags.cacheDir != "" {
		cfg.CacheDir = flags.cacheDir
	}
	if flags.verbose {
		cfg.Verbose = true
	}
	if flags.jsonLogs {
		cfg.JSONLogs = true
	}

	logger := logging.NewSlogAdapter(logging.New(logging.Options{
		Verbose: cfg.Verbose,
		JSON:    cfg.JSONLogs,
		Writer:  cmd.ErrOrStderr(),
	}))

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}
