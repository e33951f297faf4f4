// Package server exposes verification runs over HTTP: trigger a run, read
// manifests, logs and reports, and browse artifacts.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"verifyshot/internal/report"
	"verifyshot/internal/runner"
)

// RunRequest overrides parts of the configured scenario for one run.
type RunRequest struct {
	BaseURL  string `json:"base_url"`
	Path     string `json:"path"`
	Engine   string `json:"engine"`
	Headless *bool  `json:"headless"`
}

// ErrInvalidRequest is wrapped by a RunFunc when the request overrides produce
// an invalid configuration. Such failures are answered with 400.
var ErrInvalidRequest = errors.New("invalid run request")

// RunFunc executes one run. It is wired to runner.Run by the CLI.
type RunFunc func(ctx context.Context, req RunRequest) (runner.Result, error)

// Server serves one workspace.
type Server struct {
	workspace string
	run       RunFunc
	logger    *slog.Logger

	// Runs share the browser and the fixed output paths, so only one at a time.
	runMu sync.Mutex
}

// New returns a Server over workspace. run may be nil to disable POST /v1/runs.
func New(workspace string, run RunFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{workspace: workspace, run: run, logger: logger}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/health", s.health)
	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Post("/", s.createRun)
		r.Get("/{id}", s.getRun)
		r.Get("/{id}/logs", s.getLogs)
		r.Get("/{id}/report", s.getReport)
	})

	runsDir := filepath.Join(s.workspace, "runs")
	r.Handle("/runs/*", http.StripPrefix("/runs/", http.FileServer(http.Dir(runsDir))))
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	ids, err := runner.FindRuns(s.workspace)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make([]runner.Manifest, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		m, err := runner.LoadManifest(runner.ManifestPath(s.workspace, ids[i]))
		if err != nil {
			continue
		}
		out = append(out, publicManifest(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "runs are read-only on this server"})
		return
	}
	// An empty body runs the configured scenario unchanged.
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.runMu.Lock()
	res, err := s.run(r.Context(), req)
	s.runMu.Unlock()

	if res.RunID == "" && errors.Is(err, ErrInvalidRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if res.RunID == "" {
		msg := "run failed"
		if err != nil {
			msg = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
		return
	}
	status := http.StatusOK
	if err != nil {
		s.logger.Warn("run failed", "run_id", res.RunID, "error", err)
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, publicManifest(res.Manifest))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	m, err := runner.LoadManifest(runner.ManifestPath(s.workspace, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, publicManifest(m))
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	logPath := filepath.Join(s.workspace, "runs", id, "logs", "runner.ndjson")
	if _, err := os.Stat(logPath); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	http.ServeFile(w, r, logPath)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	m, err := runner.LoadManifest(runner.ManifestPath(s.workspace, id))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if err := report.Write(w, m); err != nil {
		s.logger.Warn("render report", "run_id", id, "error", err)
	}
}

// runID rejects ids that could escape the runs directory.
func runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return "", false
	}
	return id, true
}

// publicManifest rewrites artifact names to URLs under /runs/.
func publicManifest(m runner.Manifest) runner.Manifest {
	prefix := "/runs/" + m.RunID + "/artifacts/"
	steps := make([]runner.StepRecord, len(m.Steps))
	for i, st := range m.Steps {
		if st.Screenshot != "" {
			st.Screenshot = prefix + st.Screenshot
		}
		if st.DOMSnapshot != "" {
			st.DOMSnapshot = prefix + st.DOMSnapshot
		}
		steps[i] = st
	}
	m.Steps = steps
	if m.VideoWebP != "" {
		m.VideoWebP = prefix + m.VideoWebP
	}
	if m.VideoWebM != "" {
		m.VideoWebM = prefix + filepath.ToSlash(m.VideoWebM)
	}
	m.LogPath = "/v1/runs/" + m.RunID + "/logs"
	return m
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
