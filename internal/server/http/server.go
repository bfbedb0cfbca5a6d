package httpserver

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rzbill/rowlease/internal/runtime"
	logpkg "github.com/rzbill/rowlease/pkg/log"
)

// Server serves the row API over one Runtime.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	logger logpkg.Logger

	mu     sync.Mutex
	lis    net.Listener
	closed bool
}

// New builds a Server and registers its routes.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		logger: logger.WithComponent("http"),
		srv:    &http.Server{Handler: cors(mux), ReadHeaderTimeout: 10 * time.Second},
	}
	s.routes(mux)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/schema", s.handleSchema)
	mux.HandleFunc("PUT /v1/header", s.handleHeader)
	mux.HandleFunc("POST /v1/claim", s.handleClaim)
	mux.HandleFunc("GET /v1/rows", s.handleFind)
	mux.HandleFunc("POST /v1/rows", s.handleAppend)
	mux.HandleFunc("GET /v1/rows/{row}", s.handleRow)
	mux.HandleFunc("POST /v1/rows/{row}", s.handleUpdate)
	mux.HandleFunc("POST /v1/rows/{row}/release", s.handleRelease)
	mux.HandleFunc("POST /v1/rows/{row}/complete", s.handleComplete)
	mux.HandleFunc("POST /v1/rows/{row}/fail", s.handleFail)
	mux.HandleFunc("POST /v1/deadletter", s.handleDeadLetter)
	mux.Handle("GET /metrics", s.rt.Metrics().Handler())
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return nil
	}
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound listener address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Close stops the listener. A later ListenAndServe returns without serving.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
