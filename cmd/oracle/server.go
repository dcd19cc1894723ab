package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dice-oracle/internal/logging"
	"github.com/R3E-Network/dice-oracle/internal/relay"
)

// loopStatus is the read-only view of the relay loop served over HTTP.
type loopStatus interface {
	State() relay.State
	LastCycle() (relay.Cycle, bool)
}

type statusInfo struct {
	loop     loopStatus
	contract string
	oracle   string
}

type statusResponse struct {
	State     string       `json:"state"`
	Contract  string       `json:"contract"`
	Oracle    string       `json:"oracle"`
	LastCycle *relay.Cycle `json:"last_cycle,omitempty"`
}

func newRouter(info statusInfo, metricsHandler http.Handler, logger *logging.Logger) *mux.Router {
	r := mux.NewRouter()
	if logger != nil {
		r.Use(requestLogger(logger))
	}
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", info.handleStatus).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s statusInfo) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		State:    s.loop.State().String(),
		Contract: s.contract,
		Oracle:   s.oracle,
	}
	if last, ok := s.loop.LastCycle(); ok {
		resp.LastCycle = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request at debug level with its route template.
func requestLogger(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			logger.WithContext(r.Context()).WithFields(map[string]any{
				"method":   r.Method,
				"path":     path,
				"status":   wrapped.statusCode,
				"duration": time.Since(start).String(),
			}).Debug("http request")
		})
	}
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
