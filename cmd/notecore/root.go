package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/notecore/internal/config"
	"github.com/kimhsiao/notecore/internal/logging"
)

type rootOptions struct {
	envFile  string
	dataDir  string
	logLevel string
	json     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "notecore",
		Short:         "Local-first note store",
		Long:          "notecore keeps notes and categories in a local SQLite store and syncs them to vaults, buckets, databases and peers.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Env file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides "+config.EnvDataDir+")")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(
		newNoteCmd(opts),
		newCategoryCmd(opts),
		newSyncCmd(opts),
		newBackupCmd(opts),
		newServeCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "notecore %s\n", Version)
			},
		},
	)
	return rootCmd
}

// loadConfig loads the configuration and initializes logging, applying
// command-line overrides.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if o.dataDir != "" {
		if err := os.Setenv(config.EnvDataDir, o.dataDir); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logging.Init(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// openApp loads the configuration and wires the application.
func (o *rootOptions) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(commandContext(cmd), cfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
