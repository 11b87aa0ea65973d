// Package web serves the onboarding page: upload, import, generate, the
// repository/service pickers, the parameter table, modals and xlsx export.
// Long-running actions run in the background and report progress over a
// WebSocket.
package web

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/greg-hellings/portal/pkg/export"
	"github.com/greg-hellings/portal/pkg/ingest"
	"github.com/greg-hellings/portal/pkg/state"
	"github.com/greg-hellings/portal/pkg/view"
)

// MaxUploadSize bounds the multipart body of /upload.
const MaxUploadSize = 10 << 20

//go:embed assets/index.html
var assets embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"isCode":      func(k view.CellKind) bool { return k == view.CellCode },
	"isArtifacts": func(k view.CellKind) bool { return k == view.CellArtifacts },
	"isFolder":    func(k view.CellKind) bool { return k == view.CellFolder },
}).ParseFS(assets, "assets/index.html"))

// Server is the portal HTTP front end.
type Server struct {
	ctrl *state.Controller
	hub  *Hub

	// jobs carries background Import/Generate runs; cancelled on Shutdown.
	jobs   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer wires ctrl to a WebSocket hub.
func NewServer(ctrl *state.Controller) *Server {
	jobs, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctrl:   ctrl,
		hub:    NewHub(),
		jobs:   jobs,
		cancel: cancel,
	}
	ctrl.Subscribe(s.hub.Publish)
	return s
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /sample.csv", s.handleSample)
	mux.HandleFunc("GET /export.xlsx", s.handleExport)

	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /select/repo", s.handleSelectRepo)
	mux.HandleFunc("POST /select/service", s.handleSelectService)
	mux.HandleFunc("POST /artifact/open", s.handleArtifactOpen)
	mux.HandleFunc("POST /artifact/close", s.action(s.ctrl.CloseArtifact))
	mux.HandleFunc("POST /folder/open", s.handleFolderOpen)
	mux.HandleFunc("POST /folder/close", s.action(s.ctrl.CloseFolderStructure))
	mux.HandleFunc("POST /popup/close", s.action(s.ctrl.ClosePopup))
	return logRequests(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Portal listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Shutdown cancels background jobs, waits for them and closes WebSockets.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.hub.Close()
}

// Wait blocks until background jobs started so far have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) background(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.jobs); err != nil {
			slog.Warn("Background job failed", "job", name, "error", err)
		}
	}()
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, s.ctrl.Snapshot()); err != nil {
		slog.Error("Failed to render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	v := s.ctrl.Snapshot()
	s.hub.ServeWS(w, r,
		NewStatusMessage(v.Status),
		NewLoadingMessage(v.Loading),
		NewStateMessage(v))
}

func (s *Server) handleSample(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ingest.SampleFilename))
	_, _ = w.Write(ingest.SampleCSV())
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := s.ctrl.Export(&buf); err != nil {
		if errors.Is(err, export.ErrNoSelection) {
			http.Error(w, "select a repository and service first", http.StatusConflict)
			return
		}
		slog.Error("Export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}
	s.ctrl.SelectFile(header.Filename, content)
	done(w, r)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.Snapshot().FileName == "" {
		http.Error(w, "choose a CSV file first", http.StatusBadRequest)
		return
	}
	s.background("import", func(ctx context.Context) error {
		_, err := s.ctrl.Import(ctx)
		return err
	})
	accepted(w, r)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.Snapshot().FileName == "" {
		http.Error(w, "choose a CSV file first", http.StatusBadRequest)
		return
	}
	s.background("generate", s.ctrl.Generate)
	accepted(w, r)
}

func (s *Server) handleSelectRepo(w http.ResponseWriter, r *http.Request) {
	s.ctrl.SelectRepo(r.FormValue("repo"))
	done(w, r)
}

func (s *Server) handleSelectService(w http.ResponseWriter, r *http.Request) {
	s.ctrl.SelectService(r.FormValue("service"))
	done(w, r)
}

func (s *Server) handleArtifactOpen(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		http.Error(w, "invalid artifact index", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.OpenArtifact(index); err != nil {
		writeStateError(w, err)
		return
	}
	done(w, r)
}

func (s *Server) handleFolderOpen(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.OpenFolderStructure(); err != nil {
		writeStateError(w, err)
		return
	}
	done(w, r)
}

func (s *Server) action(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn()
		done(w, r)
	}
}

func writeStateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrNoSelection):
		http.Error(w, "select a repository and service first", http.StatusConflict)
	case errors.Is(err, state.ErrNoArtifact):
		http.Error(w, "artifact not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// wantsJSON reports whether the caller is a script rather than a form post.
func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

// done answers a synchronous action: scripts get the new state, forms are
// redirected back to the page.
func done(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// accepted answers an action that continues in the background.
func accepted(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start))
	})
}
