// Package httpapi serves the scraper endpoints used by the web application.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/pricewatch/internal/logging"
	"github.com/modoterra/pricewatch/pkg/core"
	"github.com/modoterra/pricewatch/pkg/daemon"
	"github.com/modoterra/pricewatch/pkg/linkcheck"
)

const maxBodyBytes = 64 * 1024

// Supervisor is the part of daemon.Supervisor the API uses.
type Supervisor interface {
	ReadLog() []string
	Entries() []core.LogLine
	Workers() []core.Worker
	RunImport(link string) string
	CancelWorker(id string) error
	StartMain() error
	StopMain() error
}

// ImportRequest is the body of PATCH /api/scraper/import.
type ImportRequest struct {
	ImportLink string `json:"import_link"`
}

// ImportResponse acknowledges an accepted import job.
type ImportResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API routes HTTP requests to a Supervisor.
type API struct {
	sup    Supervisor
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds the API and its routes.
func New(sup Supervisor, logger *slog.Logger) *API {
	a := &API{sup: sup, logger: logger, mux: http.NewServeMux()}
	a.mux.HandleFunc("GET /api/scraper/log", a.handleLog)
	a.mux.HandleFunc("GET /api/scraper/log/entries", a.handleEntries)
	a.mux.HandleFunc("GET /api/scraper/workers", a.handleWorkers)
	a.mux.HandleFunc("DELETE /api/scraper/workers/{id}", a.handleCancel)
	a.mux.HandleFunc("POST /api/scraper/main/{action}", a.handleMain)
	a.mux.HandleFunc("PATCH /api/scraper/import", a.handleImport)
	a.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	return a
}

// ServeHTTP tags the request with an id and logs its outcome.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logging.ContextAttrs(r.Context(), slog.String("request_id", uuid.NewString()))
	r = r.WithContext(ctx)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	a.mux.ServeHTTP(rec, r)

	a.logger.DebugContext(ctx, "http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start))
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (a *API) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (a *API) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("http api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

func (a *API) handleLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sup.ReadLog())
}

func (a *API) handleEntries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sup.Entries())
}

func (a *API) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sup.Workers())
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	link, err := linkcheck.Validate(req.ImportLink)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := a.sup.RunImport(link)
	a.logger.InfoContext(r.Context(), "import requested", "id", id, "link", link)
	writeJSON(w, http.StatusAccepted, ImportResponse{ID: id, Message: "Import job started"})
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.sup.CancelWorker(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMain(w http.ResponseWriter, r *http.Request) {
	var err error
	switch r.PathValue("action") {
	case "start":
		err = a.sup.StartMain()
	case "stop":
		err = a.sup.StopMain()
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", r.PathValue("action")))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, daemon.ErrUnknownWorker):
		return http.StatusNotFound
	case errors.Is(err, daemon.ErrMainDisabled):
		return http.StatusConflict
	case errors.Is(err, daemon.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
