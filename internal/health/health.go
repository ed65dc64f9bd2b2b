// Package health exposes /healthz, /readyz, and /metrics (C11), grounded
// directly on the teacher's main.go http.ServeMux + promhttp.Handler()
// wiring, extended with a component-level readiness breakdown per
// spec §4.9 ("readyz reports per-component status, not just true/false").
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a single dependency is ready, with a short
// human-readable detail for the /readyz body.
type Checker interface {
	Name() string
	Ready(ctx context.Context) (ok bool, detail string)
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc struct {
	NameStr string
	Fn      func(ctx context.Context) (bool, string)
}

func (c CheckerFunc) Name() string { return c.NameStr }
func (c CheckerFunc) Ready(ctx context.Context) (bool, string) { return c.Fn(ctx) }

// Server is the liveness/readiness/metrics HTTP surface. It never blocks
// trading logic — checks run with a short per-request timeout so a wedged
// dependency degrades /readyz instead of hanging the probe.
type Server struct {
	addr     string
	checkers []Checker
	timeout  time.Duration
}

func New(addr string, checkers ...Checker) *Server {
	return &Server{addr: addr, checkers: checkers, timeout: 3 * time.Second}
}

type componentStatus struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type readyResponse struct {
	OK         bool               `json:"ok"`
	Components []componentStatus  `json:"components"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp := readyResponse{OK: true, Components: make([]componentStatus, 0, len(s.checkers))}
	for _, c := range s.checkers {
		ok, detail := c.Ready(ctx)
		resp.Components = append(resp.Components, componentStatus{Name: c.Name(), OK: ok, Detail: detail})
		if !ok {
			resp.OK = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// ListenAndServe starts the HTTP server; callers run it in a goroutine
// the way the teacher's main.go does and call Shutdown during drain.
func (s *Server) ListenAndServe() (*http.Server, <-chan error) {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return srv, errCh
}
