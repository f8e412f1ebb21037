package updatehelper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Result is what the helper reports back to the next launcher run.
type Result struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Attempts   int       `json:"attempts"`
	Restarted  bool      `json:"restarted"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ResultHandler reads and writes the helper's result file.
type ResultHandler struct {
	path string
}

func NewResultHandler(path string) *ResultHandler {
	return &ResultHandler{path: path}
}

func (rh *ResultHandler) Path() string {
	return rh.path
}

// Write stores the result through a temp file and a rename so readers never
// see a partial document.
func (rh *ResultHandler) Write(result Result) error {
	dir := filepath.Dir(rh.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	tmp := rh.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp result: %w", err)
	}
	if err := os.Rename(tmp, rh.path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Warn("remove temp result file", "path", tmp, "error", rmErr)
		}
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// Read returns the stored result. A missing file yields os.ErrNotExist.
func (rh *ResultHandler) Read() (Result, error) {
	data, err := os.ReadFile(rh.path)
	if err != nil {
		return Result{}, err
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("invalid result format: %w", err)
	}
	return result, nil
}

func (rh *ResultHandler) Cleanup() error {
	if err := os.Remove(rh.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Watch blocks until the result file appears or ctx ends. The result file is
// left in place.
func (rh *ResultHandler) Watch(ctx context.Context) (Result, error) {
	if result, err := rh.Read(); err == nil {
		return result, nil
	}

	dir := filepath.Dir(rh.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create result dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Result{}, fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Warn("close result watcher", "error", err)
		}
	}()
	if err := watcher.Add(dir); err != nil {
		return Result{}, fmt.Errorf("watch %s: %w", dir, err)
	}

	// The helper may have finished between the first read and Add.
	if result, err := rh.Read(); err == nil {
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return Result{}, errors.New("watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != filepath.Clean(rh.path) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				result, err := rh.Read()
				if err != nil {
					slog.Debug("result not readable yet", "path", rh.path, "error", err)
					continue
				}
				return result, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return Result{}, errors.New("watcher closed unexpectedly")
			}
			return Result{}, fmt.Errorf("watcher error: %w", err)
		}
	}
}
