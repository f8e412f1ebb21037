// Package download streams release artifacts to disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultTimeout = 180 * time.Second
	MaxRedirects   = 3
)

var (
	ErrDownload = errors.New("download failed")
	ErrTimeout  = errors.New("download timed out")
)

// DownloadError carries the context needed to diagnose a failed download.
type DownloadError struct {
	URL        string
	Dest       string
	StatusCode int
	Written    int64
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status=%d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("download %s (%d bytes written): %v", e.URL, e.Written, e.Err)
}

func (e *DownloadError) Unwrap() []error {
	return []error{ErrDownload, e.Err}
}

// ProgressFunc receives the completed fraction in [0, 1].
type ProgressFunc func(ratio float64)

type Options struct {
	HTTPClient *http.Client
	// Timeout bounds the whole transfer. Zero means DefaultTimeout.
	Timeout   time.Duration
	AuthToken string
	UserAgent string
}

var errTooManyRedirects = errors.New("too many redirects")

func client(base *http.Client) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > MaxRedirects {
			return fmt.Errorf("%w (max %d)", errTooManyRedirects, MaxRedirects)
		}
		return nil
	}
	return c
}

// File downloads url into dest and returns the number of bytes written. A
// stale dest is removed first. On any failure, including the timeout, the
// partial file is removed.
func File(ctx context.Context, url, dest string, onProgress ProgressFunc, opts Options) (int64, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, &DownloadError{URL: url, Dest: dest, Err: fmt.Errorf("create download dir: %w", err)}
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("remove stale download", "path", dest, "error", err)
	}

	n, err := fetch(ctx, url, dest, onProgress, opts)
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("remove partial download", "path", dest, "error", rmErr)
		}
		var derr *DownloadError
		if !errors.As(err, &derr) {
			derr = &DownloadError{URL: url, Dest: dest, Written: n, Err: err}
		}
		if errors.Is(context.Cause(ctx), ErrTimeout) && !errors.Is(derr.Err, ErrTimeout) {
			derr.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, derr.Err)
		}
		slog.Error("download failed", "asset_url", url, "path", dest, "bytes_written", n, "error", derr.Err)
		return n, derr
	}
	slog.Info("download complete", "asset_url", url, "path", dest, "bytes", n)
	return n, nil
}

func fetch(ctx context.Context, url, dest string, onProgress ProgressFunc, opts Options) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "xenoupdate"
	}
	req.Header.Set("User-Agent", ua)
	if token := strings.TrimSpace(opts.AuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client(opts.HTTPClient).Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return 0, &DownloadError{
			URL:        url,
			Dest:       dest,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status body=%s", strings.TrimSpace(string(body))),
		}
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create destination file: %w", err)
	}
	pw := &progressWriter{total: resp.ContentLength, onProgress: onProgress}
	n, err := io.Copy(io.MultiWriter(out, pw), resp.Body)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close destination file: %w", cerr)
	}
	return n, err
}

// progressWriter reports progress only when the total size is known.
type progressWriter struct {
	total      int64
	written    int64
	onProgress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.onProgress != nil && p.total > 0 {
		ratio := float64(p.written) / float64(p.total)
		if ratio > 1 {
			ratio = 1
		}
		p.onProgress(ratio)
	}
	return len(b), nil
}
