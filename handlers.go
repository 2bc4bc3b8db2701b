package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kwv/kdmatch/match"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBytes bounds the body of a match request.
const maxRequestBytes = 32 << 20

// matchRequest is the body of POST /match/{variant}.
type matchRequest struct {
	Catalogue1 [][2]float64         `json:"catalogue1"`
	Catalogue2 [][2]float64         `json:"catalogue2"`
	Params     *match.ParamsConfig `json:"params,omitempty"`
	NoSwap     *bool               `json:"noSwap,omitempty"`
	Source     string              `json:"source,omitempty"`
}

// matchResponse wraps a result with its "-t" argument line.
type matchResponse struct {
	*match.Result
	ID    string `json:"id"`
	Found bool   `json:"found"`
	Args  string `json:"args,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints. cfg supplies
// the default parameters; pub, when non-nil, receives every result.
func newHTTPServer(cfg *match.Config, pub *match.Publisher) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Version   string    `json:"version"`
			Publish   bool      `json:"publish"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   Version,
			Publish:   pub != nil,
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Each request builds its own matcher; nothing is shared between runs.
	mux.HandleFunc("POST /match/{variant}", func(w http.ResponseWriter, r *http.Request) {
		kind, err := match.ParseKind(r.PathValue("variant"))
		if err != nil {
			httpError(w, http.StatusNotFound, err)
			return
		}

		var req matchRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, err)
				return
			}
			httpError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
			return
		}

		if limit := cfg.MaxPoints(); limit > 0 {
			if n := max(len(req.Catalogue1), len(req.Catalogue2)); n > limit {
				httpError(w, http.StatusRequestEntityTooLarge,
					fmt.Errorf("catalogue has %d points, the limit is %d", n, limit))
				return
			}
		}

		params := cfg.Params(kind)
		req.Params.Apply(&params)
		if req.NoSwap != nil {
			params.NoSwap = *req.NoSwap
		}
		if err := params.Validate(kind); err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}

		id := uuid.NewString()
		start := time.Now()
		matcher := &match.Matcher{Kind: kind, Params: params}
		res, err := matcher.RunContext(r.Context(), toPoints(req.Catalogue1), toPoints(req.Catalogue2))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[HTTP] %s match %s abandoned: %v", kind, id, err)
			httpError(w, http.StatusServiceUnavailable, err)
			return
		}
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, err)
			return
		}
		matchDuration.WithLabelValues(res.Variant).Observe(time.Since(start).Seconds())
		matchCandidates.WithLabelValues(res.Variant).Observe(float64(res.Candidates))
		matchRunsTotal.WithLabelValues(res.Variant, fmt.Sprint(res.Found())).Inc()
		log.Printf("[HTTP] %s match %s: n1=%d n2=%d candidates=%d nbest=%d", kind, id, res.N1, res.N2, res.Candidates, res.NBest)

		if pub != nil {
			source := req.Source
			if source == "" {
				source = "http:" + id
			}
			if err := pub.PublishResult(source, res); err != nil {
				log.Printf("Warning: failed to publish %s result: %v", res.Variant, err)
			}
		}

		resp := matchResponse{Result: res, ID: id, Found: res.Found()}
		if resp.Found {
			resp.Args = res.Best.String()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("Error encoding match result: %v", err)
		}
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	// Wrap mux with logging middleware
	instrumented := instrument(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		instrumented.ServeHTTP(w, r)
	})
}

func toPoints(in [][2]float64) []orb.Point {
	out := make([]orb.Point, len(in))
	for i, p := range in {
		out[i] = orb.Point(p)
	}
	return out
}

func httpError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
