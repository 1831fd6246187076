// Package web provides an HTTP status server for the climate-sensor daemon.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/climate-sensor/internal/status"
)

// Source supplies the state to render. status.Tracker satisfies it.
type Source interface {
	Snapshot() status.Snapshot
}

// Server serves the status page and its JSON form over HTTP.
type Server struct {
	httpServer *http.Server
	src        Source
}

// New creates a Server on addr that renders snapshots from src.
func New(addr string, src Source) *Server {
	s := &Server{src: src}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)

	s.httpServer = &http.Server{Addr: addr, Handler: readOnly(mux)}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readOnly rejects anything but GET and HEAD, and marks every response
// uncacheable since readings change on each sample.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.src.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.src.Snapshot()))
}
