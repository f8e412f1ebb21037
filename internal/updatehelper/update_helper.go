// Package updatehelper implements the detached process that swaps a locked
// launcher file for its downloaded replacement once the launcher has exited.
package updatehelper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/minio/selfupdate"
	"github.com/spf13/pflag"

	"github.com/xenolauncher/xenoupdate/internal/installer"
	"github.com/xenolauncher/xenoupdate/internal/logging"
	"github.com/xenolauncher/xenoupdate/internal/updateutil"
)

type Kind string

const (
	KindBundle   Kind = "bundle"
	KindPortable Kind = "portable"
)

const (
	DefaultAttempts      = 120
	DefaultInterval      = 500 * time.Millisecond
	DefaultParentTimeout = 60 * time.Second
	restartDelay         = 250 * time.Millisecond
)

// Options are the parsed helper arguments.
type Options struct {
	Kind          Kind
	Src           string
	Dst           string
	Exe           string
	PID           int
	ResultPath    string
	LogPath       string
	RestartArgs   []string
	Attempts      int
	Interval      time.Duration
	ParentTimeout time.Duration
}

// RestartTarget is the executable started after a successful swap.
func (o Options) RestartTarget() string {
	if o.Kind == KindBundle {
		return o.Exe
	}
	return o.Dst
}

// ParseArgs parses `<bundle|portable> --src ... --dst ... [--exe ...] [--pid N]`.
func ParseArgs(args []string) (Options, error) {
	fs := pflag.NewFlagSet(installer.HelperCommand, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts Options
	fs.StringVar(&opts.Src, "src", "", "downloaded replacement")
	fs.StringVar(&opts.Dst, "dst", "", "file to replace")
	fs.StringVar(&opts.Exe, "exe", "", "executable to restart (bundle)")
	fs.IntVar(&opts.PID, "pid", 0, "launcher pid to wait for")
	fs.StringVar(&opts.ResultPath, "result", "", "result file path")
	fs.StringVar(&opts.LogPath, "log", "", "log file path")
	fs.StringArrayVar(&opts.RestartArgs, "arg", nil, "argument for the restarted executable (repeatable)")
	fs.IntVar(&opts.Attempts, "attempts", DefaultAttempts, "replace attempts")
	fs.DurationVar(&opts.Interval, "interval", DefaultInterval, "delay between attempts")
	fs.DurationVar(&opts.ParentTimeout, "parent-timeout", DefaultParentTimeout, "max wait for the launcher to exit")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if fs.NArg() != 1 {
		return Options{}, fmt.Errorf("%s requires exactly one kind (bundle or portable)", installer.HelperCommand)
	}
	opts.Kind = Kind(strings.ToLower(strings.TrimSpace(fs.Arg(0))))
	switch opts.Kind {
	case KindBundle, KindPortable:
	default:
		return Options{}, fmt.Errorf("unknown helper kind %q", fs.Arg(0))
	}
	if strings.TrimSpace(opts.Src) == "" || strings.TrimSpace(opts.Dst) == "" {
		return Options{}, fmt.Errorf("%s requires --src and --dst", installer.HelperCommand)
	}
	if opts.Kind == KindBundle && strings.TrimSpace(opts.Exe) == "" {
		return Options{}, fmt.Errorf("%s bundle requires --exe", installer.HelperCommand)
	}
	if filepath.Clean(opts.Src) == filepath.Clean(opts.Dst) {
		return Options{}, installer.ErrSamePath
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	return opts, nil
}

// Run is the entry point of `xenoupdate update-helper`.
func Run(args []string) error {
	opts, err := ParseArgs(args)
	if err != nil {
		return err
	}
	closer, err := logging.Setup(logging.Options{File: opts.LogPath, Level: "debug"})
	if err != nil {
		return err
	}
	defer closer.Close()

	return newRunner(opts).run(context.Background())
}

type runner struct {
	opts    Options
	start   func(name string, args ...string) error
	sleep   func(time.Duration)
	running func(pid int) (bool, error)
	now     func() time.Time
}

func newRunner(opts Options) *runner {
	return &runner{
		opts:    opts,
		start:   installer.ExecSpawner{}.Start,
		sleep:   time.Sleep,
		running: processRunning,
		now:     time.Now,
	}
}

func (r *runner) run(ctx context.Context) error {
	log := slog.With("kind", r.opts.Kind, "src", r.opts.Src, "dst", r.opts.Dst)
	log.Info("update helper started", "pid", r.opts.PID, "attempts", r.opts.Attempts)

	r.waitForParent(ctx)

	result := Result{Kind: string(r.opts.Kind), Target: r.opts.Dst}
	attempts, err := r.replaceWithRetry(ctx)
	result.Attempts = attempts
	if err != nil {
		if restoreErr := restoreBackup(r.opts.Dst); restoreErr != nil {
			err = multierror.Append(err, restoreErr)
		}
		log.Error("replace failed", "attempts", attempts, "error", err)
		result.Error = err.Error()
		r.writeResult(result)
		return fmt.Errorf("replace %s: %w", r.opts.Dst, err)
	}
	result.Success = true
	log.Info("replace succeeded", "attempts", attempts)
	// The restarted launcher may read the result before we rewrite it below.
	r.writeResult(result)
	if err := removeBackup(r.opts.Dst); err != nil {
		log.Warn("remove backup", "error", err)
	}

	r.sleep(restartDelay)
	target := r.opts.RestartTarget()
	if err := r.start(target, r.opts.RestartArgs...); err != nil {
		// The new file is in place; the user can start it by hand.
		log.Error("restart failed", "exe", target, "error", err)
		result.Error = fmt.Sprintf("restart %s: %v", target, err)
	} else {
		result.Restarted = true
	}
	r.writeResult(result)
	return nil
}

// waitForParent gives the launcher time to exit and release its files. It
// never fails: the retry loop copes with a launcher that is still around.
func (r *runner) waitForParent(ctx context.Context) {
	if r.opts.PID <= 0 {
		return
	}
	deadline := r.now().Add(r.opts.ParentTimeout)
	for {
		running, err := r.running(r.opts.PID)
		if err != nil {
			slog.Warn("probe parent process", "pid", r.opts.PID, "error", err)
			return
		}
		if !running {
			slog.Debug("parent exited", "pid", r.opts.PID)
			return
		}
		if !r.now().Before(deadline) || ctx.Err() != nil {
			slog.Warn("parent still running, continuing", "pid", r.opts.PID)
			return
		}
		r.sleep(200 * time.Millisecond)
	}
}

func (r *runner) replaceWithRetry(ctx context.Context) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		return replaceFile(r.opts.Src, r.opts.Dst)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.opts.Interval), uint64(r.opts.Attempts-1)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		slog.Debug("replace attempt failed", "attempt", attempts, "retry_in", next, "error", err)
	}
	err := backoff.RetryNotify(op, b, notify)
	return attempts, err
}

func (r *runner) writeResult(result Result) {
	if strings.TrimSpace(r.opts.ResultPath) == "" {
		return
	}
	result.ExecutedAt = r.now().UTC()
	if err := NewResultHandler(r.opts.ResultPath).Write(result); err != nil {
		slog.Error("write helper result", "path", r.opts.ResultPath, "error", err)
	}
}

// replaceFile moves dst aside to dst.bak and puts src in its place. When dst
// does not exist src is simply copied in.
func replaceFile(src, dst string) error {
	bak := dst + ".bak"
	if err := os.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale backup: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("open replacement: %w", err))
	}
	defer in.Close()

	info, err := os.Stat(dst)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return updateutil.CopyFile(src, dst, 0o755)
	}
	if err != nil {
		return err
	}

	err = selfupdate.Apply(in, selfupdate.Options{
		TargetPath:  dst,
		TargetMode:  info.Mode().Perm(),
		OldSavePath: bak,
	})
	if err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			slog.Error("rollback after failed replace", "dst", dst, "error", rerr)
		}
		return err
	}
	return nil
}

// removeBackup deletes dst.bak once the new file is confirmed in place.
func removeBackup(dst string) error {
	if err := os.Remove(dst + ".bak"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// restoreBackup puts dst.bak back when a failed swap left dst missing.
func restoreBackup(dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	bak := dst + ".bak"
	if _, err := os.Stat(bak); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Rename(bak, dst); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	slog.Info("backup restored", "dst", dst)
	return nil
}
