package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xenolauncher/xenoupdate/internal/installer"
	"github.com/xenolauncher/xenoupdate/internal/updatehelper"
	"github.com/xenolauncher/xenoupdate/internal/updater"
)

func newUpdateHelperCommand() *cobra.Command {
	return &cobra.Command{
		Use:                installer.HelperCommand + " {bundle|portable} --src PATH --dst PATH [--exe PATH] [--pid N]",
		Short:              "Internal: replace a locked launcher file after the launcher exits",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return updatehelper.Run(args)
		},
	}
}

func newHelperResultCommand(root *rootOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "helper-result",
		Short: "Print the result reported by the last update helper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := root.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			updatesDir, err := updater.UpdatesDir(cfg)
			if err != nil {
				return err
			}
			rh := updatehelper.NewResultHandler(installer.New(updatesDir).ResultPath())

			var result updatehelper.Result
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				result, err = rh.Watch(ctx)
			} else {
				result, err = rh.Read()
			}
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no helper result at %s", rh.Path())
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the result to appear")
	return cmd
}
