package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMarkerCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marker",
		Short: "Inspect or change the applied release marker",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the applied and pending markers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, closer, err := root.load()
				if err != nil {
					return err
				}
				defer closer.Close()
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer st.Close()

				applied, err := st.AppliedMarker()
				if err != nil {
					return err
				}
				pending, ok, err := st.PendingMarker()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied: %s\n", applied)
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "pending: %s\n", pending)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set MARKER",
			Short: "Record MARKER as applied",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, closer, err := root.load()
				if err != nil {
					return err
				}
				defer closer.Close()
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				return st.SetAppliedMarker(args[0])
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the applied and pending markers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, closer, err := root.load()
				if err != nil {
					return err
				}
				defer closer.Close()
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SetAppliedMarker(""); err != nil {
					return err
				}
				return st.ClearPendingMarker()
			},
		},
	)
	return cmd
}
