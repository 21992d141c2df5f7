package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pauljones0/deal-radar/internal/lock"
	"github.com/pauljones0/deal-radar/internal/models"
	"github.com/pauljones0/deal-radar/internal/processor"
)

const (
	defaultAuditWindow = 24 * time.Hour
	asyncRunTimeout    = 4 * time.Minute
)

type batchRunner interface {
	Run(ctx context.Context) (processor.RunReport, error)
}

type auditor interface {
	Check(ctx context.Context, since time.Time) (models.HealthReport, error)
}

type Server struct {
	runner  batchRunner
	checker auditor
	now     func() time.Time
	// running is set while a batch is in flight in this process.
	running atomic.Bool
	// done, when set, receives the error of every asynchronous run.
	done chan<- error
}

func NewServer(runner batchRunner, checker auditor) *Server {
	return &Server{runner: runner, checker: checker, now: time.Now}
}

// Routes mounts the HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/", s.ProcessDealsHandler)
	r.Post("/process-deals", s.ProcessDealsHandler)
	r.Get("/audit", s.AuditHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	return r
}

type runResponse struct {
	processor.RunReport
	Violations []models.Violation `json:"violations,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// ProcessDealsHandler starts a batch. By default the batch runs in the background and the
// request returns 202; with ?wait=true it blocks and maps the outcome to a status code.
func (s *Server) ProcessDealsHandler(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("Deal processing already in progress, rejecting request")
		writeJSON(w, http.StatusConflict, runResponse{Error: "deal processing already in progress"})
		return
	}
	if !wait {
		// Run processing asynchronously so the HTTP response isn't blocked
		// by feed fetching and store writes that may exceed timeouts.
		go s.runAsync()
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "Deal processing started.")
		return
	}

	defer s.running.Store(false)
	rep, err := s.runner.Run(r.Context())
	resp := runResponse{RunReport: rep, Violations: rep.Health.Violations()}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = runStatus(err)
		slog.Error("Error processing deals", "error", err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) runAsync() {
	var err error
	defer func() {
		s.running.Store(false)
		if r := recover(); r != nil {
			slog.Error("Panic in ProcessDeals", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		if s.done != nil {
			s.done <- err
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), asyncRunTimeout)
	defer cancel()
	if _, err = s.runner.Run(ctx); err != nil {
		slog.Error("Error processing deals", "error", err)
	}
}

func runStatus(err error) int {
	switch {
	case errors.Is(err, lock.ErrLockHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type auditResponse struct {
	Report     models.HealthReport `json:"report"`
	Violations []models.Violation  `json:"violations,omitempty"`
	Failed     bool                `json:"failed"`
}

// AuditHandler runs the health checker on demand. since (RFC 3339) bounds the archived-mutation
// window and defaults to the last 24 hours.
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	since := s.now().Add(-defaultAuditWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be an RFC 3339 timestamp"})
			return
		}
		since = t
	}

	report, err := s.checker.Check(r.Context(), since)
	if err != nil {
		slog.Error("Audit failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, auditResponse{Report: report, Violations: report.Violations(), Failed: report.Failed()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
