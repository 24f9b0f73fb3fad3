package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Recorder tracks the timestamp of the last successful poll. The poll loop
// writes it, the health server reads it.
type Recorder struct {
	mu       sync.Mutex
	started  time.Time
	lastPoll time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{started: time.Now()}
}

// RecordPoll marks a successful poll at the current time.
func (r *Recorder) RecordPoll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPoll = time.Now()
}

// LastPoll returns the time of the last successful poll, zero if none yet.
func (r *Recorder) LastPoll() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPoll
}

// Started returns the process start time.
func (r *Recorder) Started() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

type status struct {
	Status             string `json:"status"`
	LastSuccessfulPoll string `json:"last_successful_poll,omitempty"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
}

// Server exposes the liveness surface. A process that is up but has not
// polled successfully within StaleAfter reports degraded with a 503 so an
// external supervisor can restart it.
type Server struct {
	addr       string
	staleAfter time.Duration
	recorder   *Recorder
	logger     *slog.Logger
}

func NewServer(addr string, staleAfter time.Duration, recorder *Recorder, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		staleAfter: staleAfter,
		recorder:   recorder,
		logger:     logger.With("component", "health"),
	}
}

// Run serves until ctx is canceled, then shuts down with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("health server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	last := s.recorder.LastPoll()

	// Before the first poll, stale is measured from process start so a
	// freshly started instance gets a grace window.
	reference := last
	if reference.IsZero() {
		reference = s.recorder.Started()
	}

	st := status{
		Status:        "ok",
		UptimeSeconds: int64(now.Sub(s.recorder.Started()).Seconds()),
	}
	if !last.IsZero() {
		st.LastSuccessfulPoll = last.UTC().Format(time.RFC3339)
	}

	code := http.StatusOK
	if now.Sub(reference) > s.staleAfter {
		st.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, st)
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	last := s.recorder.LastPoll()
	if last.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, status{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, status{
		Status:             "ok",
		LastSuccessfulPoll: last.UTC().Format(time.RFC3339),
		UptimeSeconds:      int64(time.Since(s.recorder.Started()).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
