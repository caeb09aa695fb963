package server

import (
	"net/http"
	"net/url"
	"time"

	"devcamp/pkg/client"
)

// forwardedParams are the only query keys passed upstream
var forwardedParams = []string{"sellToken", "buyToken", "sellAmount", "buyAmount", "takerAddress"}

// proxy relays price and quote requests, keeping the API key server side
func (s *Server) proxy(endpoint client.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := r.URL.Query()
		query := url.Values{}
		for _, key := range forwardedParams {
			if v := in.Get(key); v != "" {
				query.Set(key, v)
			}
		}
		if query.Get("sellToken") == "" || query.Get("buyToken") == "" {
			writeError(w, http.StatusBadRequest, "sellToken and buyToken are required")
			return
		}
		if query.Get("sellAmount") == "" && query.Get("buyAmount") == "" {
			writeError(w, http.StatusBadRequest, "sellAmount or buyAmount is required")
			return
		}

		start := time.Now()
		status, body, err := s.agg.Forward(r.Context(), endpoint, query)
		if err != nil {
			s.metrics.ObserveUpstream(string(endpoint), http.StatusBadGateway, time.Since(start))
			s.log.Warn().Err(err).Str("endpoint", string(endpoint)).Msg("aggregator unreachable")
			writeError(w, http.StatusBadGateway, "aggregator unavailable")
			return
		}
		s.metrics.ObserveUpstream(string(endpoint), status, time.Since(start))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}
