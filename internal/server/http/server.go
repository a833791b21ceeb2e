package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/auth"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/metrics"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/runtime"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/server/http/controllers"
)

// Server is the HTTP front end: REST endpoints for the activity feed plus
// the SSE streaming transport.
type Server struct {
	rt  *runtime.Runtime
	svc *activity.Service
	srv *http.Server
	lis net.Listener
}

// Options bundles the server dependencies.
type Options struct {
	Runtime *runtime.Runtime
	Service *activity.Service
	Auth    *auth.Authenticator
	Metrics *metrics.Metrics
}

// New wires routes, auth and instrumentation into a ready Server.
func New(opts Options) *Server {
	mux := http.NewServeMux()
	reg := controllers.NewControllerRegistry(opts.Runtime, opts.Service, opts.Runtime.Config())
	reg.RegisterAllRoutes(mux)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	if opts.Auth != nil {
		handler = opts.Auth.Middleware(handler, "/v1/healthz", "/metrics")
	}
	if opts.Metrics != nil {
		handler = opts.Metrics.HTTPMiddleware(handler)
	}
	handler = cors(handler)

	return &Server{
		rt:  opts.Runtime,
		svc: opts.Service,
		srv: &http.Server{Handler: handler},
	}
}

// Handler exposes the composed handler chain, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		// Terminate SSE streams first so Shutdown does not wait on them.
		s.svc.Shutdown()
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound listen address, empty before ListenAndServe.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Close force-closes the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
