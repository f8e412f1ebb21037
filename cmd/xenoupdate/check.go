package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xenolauncher/xenoupdate/internal/status"
	"github.com/xenolauncher/xenoupdate/internal/statusserver"
	"github.com/xenolauncher/xenoupdate/internal/updater"
	"github.com/xenolauncher/xenoupdate/internal/version"
)

// exitInstalling tells the launcher to quit so the update can be applied.
const exitInstalling = 10

func newCheckCommand(root *rootOptions) *cobra.Command {
	var (
		asJSON      bool
		listen      string
		launcherPID int
		restartArgs []string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check for a launcher update and install it when allowed",
		Long: `Run one update pass: resolve the newest release, apply the rollout gate,
download the matching artifact and hand it to the installer.

The launcher is located through paths.executable (or XENO_UPDATE_EXECUTABLE).
Without it no files are replaced and the update ends in manual mode.

Exits with code 10 when an install was started and the launcher should quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if launcherPID < 0 {
				return fmt.Errorf("--launcher-pid must not be negative")
			}
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

			u, err := updater.NewFromConfig(cfg, st, updater.Host{PID: launcherPID, RestartArgs: restartArgs})
			if err != nil {
				return err
			}

			recorder := status.NewRecorder()
			report := status.Tee(recorder.Reporter(), printStatus(cmd.OutOrStdout(), asJSON))

			if listen = strings.TrimSpace(listen); listen == "" {
				listen = strings.TrimSpace(cfg.Status.Listen)
			}
			var srv *statusserver.Server
			if listen != "" {
				srv = statusserver.New(recorder, st, version.Current())
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() {
					if err := srv.Serve(ctx, listen); err != nil {
						slog.Error("status server", "error", err)
					}
				}()
			}

			out := u.Run(cmd.Context(), report)
			if srv != nil {
				srv.SetOutcome(out)
			}
			if err := printOutcome(cmd.OutOrStdout(), out, asJSON); err != nil {
				return err
			}
			if out.Installing() {
				return &exitError{code: exitInstalling, err: fmt.Errorf("installing %s", out.Version)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status updates and the outcome as JSON lines")
	cmd.Flags().StringVar(&listen, "status-listen", "", "serve the status endpoint on this address while running")
	cmd.Flags().IntVar(&launcherPID, "launcher-pid", 0, "pid of the launcher the helper waits for (default: this process)")
	cmd.Flags().StringArrayVar(&restartArgs, "launcher-arg", nil, "argument passed to the launcher on restart (repeatable)")
	return cmd
}

func printStatus(w io.Writer, asJSON bool) status.Reporter {
	if asJSON {
		enc := json.NewEncoder(w)
		return func(s status.Status) { _ = enc.Encode(map[string]any{"status": s}) }
	}
	return func(s status.Status) {
		phase := string(s.Phase)
		if phase == "" {
			phase = "-"
		}
		if s.Progress != nil {
			fmt.Fprintf(w, "[%s] %s (%d%%)\n", phase, s.Text, *s.Progress)
			return
		}
		fmt.Fprintf(w, "[%s] %s\n", phase, s.Text)
	}
}

func printOutcome(w io.Writer, out updater.Outcome, asJSON bool) error {
	if asJSON {
		v := map[string]any{"outcome": out}
		if out.Err != nil {
			v["error"] = out.Err.Error()
		}
		return json.NewEncoder(w).Encode(v)
	}
	fmt.Fprintf(w, "outcome: %s", out.Kind)
	if out.Version != "" {
		fmt.Fprintf(w, " version=%s", out.Version)
	}
	if out.Mode != "" {
		fmt.Fprintf(w, " mode=%s", out.Mode)
	}
	if out.ReleaseURL != "" {
		fmt.Fprintf(w, " release=%s", out.ReleaseURL)
	}
	if out.Err != nil {
		fmt.Fprintf(w, " error=%q", out.Err.Error())
	}
	_, err := fmt.Fprintln(w)
	return err
}
