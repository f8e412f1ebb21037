package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestFileReportsProgressWithKnownLength(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 256<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/octet-stream" {
			t.Errorf("unexpected accept header %q", got)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "updates", "app.asar")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	var ratios []float64
	n, err := File(context.Background(), srv.URL+"/app.asar", dest, func(r float64) { ratios = append(ratios, r) }, Options{})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("written=%d want %d", n, len(payload))
	}
	if len(ratios) == 0 || ratios[len(ratios)-1] != 1 {
		t.Fatalf("expected progress ending at 1, got %v", ratios)
	}
	for i := 1; i < len(ratios); i++ {
		if ratios[i] < ratios[i-1] {
			t.Fatalf("progress went backwards: %v", ratios)
		}
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("stale file was not replaced")
	}
}

func TestFileSkipsProgressWithoutLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("chunk-one"))
		flusher.Flush()
		_, _ = w.Write([]byte("chunk-two"))
	}))
	defer srv.Close()

	called := false
	dest := filepath.Join(t.TempDir(), "setup.exe")
	if _, err := File(context.Background(), srv.URL, dest, func(float64) { called = true }, Options{}); err != nil {
		t.Fatalf("File: %v", err)
	}
	if called {
		t.Fatalf("progress must not be reported when content length is unknown")
	}
}

func TestFileFollowsRedirectsAndRejectsNon2xx(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/b", http.StatusFound) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/c", http.StatusMovedPermanently) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "gone", http.StatusNotFound) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	if _, err := File(context.Background(), srv.URL+"/a", filepath.Join(dir, "ok.bin"), nil, Options{}); err != nil {
		t.Fatalf("redirects must be followed: %v", err)
	}

	dest := filepath.Join(dir, "missing.bin")
	_, err := File(context.Background(), srv.URL+"/missing", dest, nil, Options{})
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	var derr *DownloadError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 DownloadError, got %#v", err)
	}
	if !strings.Contains(err.Error(), "gone") {
		t.Fatalf("error must include response body, got %v", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no file must be left behind, stat err=%v", statErr)
	}
}

func TestFileTimeoutRemovesPartialFile(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		_, _ = w.Write(bytes.Repeat([]byte("p"), 4096))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	dest := filepath.Join(t.TempDir(), "XenoPortable.exe")
	start := time.Now()
	_, err := File(context.Background(), srv.URL, dest, nil, Options{Timeout: 100 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrDownload) {
		t.Fatalf("expected timeout download error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout was not enforced")
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial file must be removed, stat err=%v", statErr)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, bytes.Repeat([]byte{0}, size), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	if _, err := Validate(write("app.asar", 128<<10), ClassBundle); err != nil {
		t.Fatalf("bundle at the floor must pass: %v", err)
	}
	_, err := Validate(write("tiny.asar", 1024), ClassBundle)
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Size != 1024 || !strings.Contains(verr.Reason, "below minimum") {
		t.Fatalf("unexpected validation error: %+v", verr)
	}
	if _, err := Validate(write("Setup.MSI", 1<<20), ClassSetup); err != nil {
		t.Fatalf("msi installer must pass: %v", err)
	}
	if _, err := Validate(write("setup.msi", 1<<20), ClassPortable); !errors.Is(err, ErrValidation) {
		t.Fatalf("portable class must reject msi, got %v", err)
	}
	if _, err := Validate(write("small.exe", 512<<10), ClassSetup); !errors.Is(err, ErrValidation) {
		t.Fatalf("installer below 1 MiB must fail, got %v", err)
	}
	if _, err := Validate(filepath.Join(dir, "absent.exe"), ClassPortable); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing file must fail validation, got %v", err)
	}
}
