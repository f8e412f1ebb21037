// Package statusserver exposes the updater's progress on a local HTTP
// endpoint for shells that poll instead of taking a callback.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xenolauncher/xenoupdate/internal/httpx"
	"github.com/xenolauncher/xenoupdate/internal/status"
	"github.com/xenolauncher/xenoupdate/internal/store"
	"github.com/xenolauncher/xenoupdate/internal/updater"
)

// StateLister lists persisted updater state.
type StateLister interface {
	ListAppState() ([]store.AppStateEntry, error)
}

type Server struct {
	Recorder *status.Recorder
	State    StateLister
	Version  string

	mu      sync.RWMutex
	outcome *outcomeView
}

type outcomeView struct {
	updater.Outcome
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	CurrentVersion string            `json:"current_version"`
	Latest         *status.Record    `json:"latest"`
	Outcome        *outcomeView      `json:"outcome"`
	State          map[string]string `json:"state"`
}

type historyResponse struct {
	History []status.Record `json:"history"`
}

func New(recorder *status.Recorder, state StateLister, version string) *Server {
	return &Server{Recorder: recorder, State: state, Version: version}
}

// SetOutcome publishes the result of a finished run.
func (s *Server) SetOutcome(o updater.Outcome) {
	v := &outcomeView{Outcome: o}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	s.mu.Lock()
	s.outcome = v
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthzHandler)
	r.Get("/api/v1/update/status", s.statusHandler)
	r.Get("/api/v1/update/history", s.historyHandler)
	return r
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.State.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{CurrentVersion: s.Version, State: map[string]string{}}
	if s.Recorder != nil {
		if rec, ok := s.Recorder.Latest(); ok {
			resp.Latest = &rec
		}
	}
	s.mu.RLock()
	resp.Outcome = s.outcome
	s.mu.RUnlock()

	if s.State != nil {
		entries, err := s.State.ListAppState()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, e := range entries {
			resp.State[e.Key] = e.Value
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{History: []status.Record{}}
	if s.Recorder != nil {
		resp.History = s.Recorder.History()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server started", "addr", ln.Addr().String())
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve status: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		slog.Info("status server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}
