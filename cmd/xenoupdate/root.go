package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xenolauncher/xenoupdate/internal/config"
	"github.com/xenolauncher/xenoupdate/internal/logging"
	"github.com/xenolauncher/xenoupdate/internal/store"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "xenoupdate",
		Short:         "Self-update engine for the Xeno launcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $XENO_UPDATE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error (overrides config)")

	cmd.AddCommand(
		newCheckCommand(opts),
		newUpdateHelperCommand(),
		newMarkerCommand(opts),
		newHelperResultCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// load resolves the configuration and installs the logger. The returned
// closer flushes the log file.
func (o *rootOptions) load() (config.File, io.Closer, error) {
	cfg, err := config.Resolve(o.configPath, os.Getenv)
	if err != nil {
		return cfg, nil, err
	}
	if lvl := strings.TrimSpace(o.logLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	closer, err := logging.Setup(logging.Options{File: cfg.Logging.File, Level: cfg.Logging.Level})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, closer, nil
}

func openStore(cfg config.File) (*store.Store, error) {
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(dataDir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return st, nil
}
