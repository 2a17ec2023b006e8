// Package web serves the appliance status page, its JSON form and a
// readiness check for supervisors.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logger"
	"github.com/sweeney/co2mon/internal/status"
)

// Status server limits. Only a few local clients are expected.
const (
	ReadHeaderTimeout = 5 * time.Second
	WriteTimeout      = 10 * time.Second
	ShutdownTimeout   = 2 * time.Second
)

// Server renders tracker snapshots over HTTP.
type Server struct {
	tracker *status.Tracker
	log     *logger.Logger
	srv     *http.Server
}

// New creates a Server for addr. It does not listen until Run or Serve.
func New(addr string, tracker *status.Tracker, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{tracker: tracker, log: log}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
	}
	return s
}

// Handler returns the routes: the page at / and /index.html, the snapshot
// at /index.json and readiness at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", readOnly(s.page))
	mux.HandleFunc("/index.json", readOnly(s.snapshot))
	mux.HandleFunc("/healthz", readOnly(s.health))
	return mux
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down within
// ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		s.log.Warnw("render status page", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(status.FormatJSON(s.tracker.Snapshot())); err != nil {
		s.log.Debugw("write status json", "error", err)
	}
}

// health answers 200 once every worker runs, else 503 naming the
// workers that do not.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if snap.Ready() {
		fmt.Fprintln(w, "ok")
		return
	}
	var waiting []string
	for _, name := range snap.WorkerNames() {
		if st := snap.Workers[name]; st != lifecycle.Running {
			waiting = append(waiting, name+"="+st.String())
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	if len(waiting) == 0 {
		fmt.Fprintln(w, "no workers reported")
		return
	}
	fmt.Fprintln(w, strings.Join(waiting, " "))
}
