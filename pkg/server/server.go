// Package server is the HTTP backend: aggregator proxy, SIWE endpoints,
// health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"devcamp/pkg/client"
	"devcamp/pkg/logger"
	"devcamp/pkg/metrics"
	"devcamp/pkg/siwe"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Forwarder relays a query to the aggregator. *client.Client satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, endpoint client.Endpoint, query url.Values) (int, []byte, error)
}

// Options wires the server's collaborators
type Options struct {
	Aggregator Forwarder
	SIWE       *siwe.Service
	Metrics    *metrics.Metrics
	// SecureCookies marks the session cookie Secure, for HTTPS deployments
	SecureCookies bool
}

type Server struct {
	agg           Forwarder
	siwe          *siwe.Service
	metrics       *metrics.Metrics
	secureCookies bool
	router        http.Handler
	log           zerolog.Logger
}

func New(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		agg:           opts.Aggregator,
		siwe:          opts.SIWE,
		metrics:       m,
		secureCookies: opts.SecureCookies,
		log:           logger.For(logger.CategoryHTTP),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		if s.agg != nil {
			api.With(s.metrics.Middleware("/api/price")).Get("/price", s.proxy(client.EndpointPrice))
			api.With(s.metrics.Middleware("/api/quote")).Get("/quote", s.proxy(client.EndpointQuote))
		}
		if s.siwe != nil {
			api.Route("/siwe", func(sr chi.Router) {
				sr.Use(s.metrics.Middleware("/api/siwe"))
				sr.Put("/", s.issueNonce)
				sr.Post("/", s.verify)
				sr.Get("/", s.session)
				sr.Delete("/", s.signOut)
			})
		}
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then drains for up to 10s
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
