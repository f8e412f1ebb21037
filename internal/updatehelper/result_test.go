package updatehelper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResultHandlerWriteReadCleanup(t *testing.T) {
	rh := NewResultHandler(filepath.Join(t.TempDir(), "updates", "result.json"))
	if _, err := rh.Read(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist before write, got %v", err)
	}
	want := Result{Success: true, Kind: "portable", Target: `C:\Xeno\XenoPortable.exe`, Attempts: 7, Restarted: true}
	if err := rh.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(rh.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file must not remain")
	}
	got, err := rh.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if err := rh.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := rh.Cleanup(); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
}

func TestResultHandlerReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewResultHandler(path).Read(); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestResultHandlerWatch(t *testing.T) {
	rh := NewResultHandler(filepath.Join(t.TempDir(), "result.json"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = rh.Write(Result{Success: true, Kind: "bundle", Attempts: 2})
	}()
	got, err := rh.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !got.Success || got.Attempts != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestResultHandlerWatchHonoursContext(t *testing.T) {
	rh := NewResultHandler(filepath.Join(t.TempDir(), "result.json"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rh.Watch(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
