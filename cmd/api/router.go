package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

func newRouter(s *Server) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoverMiddleware)
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)
	router.Use(metricsMiddleware)

	router.HandleFunc("/search", s.searchHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler())

	return router
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if recovered := panics.Try(func() { next.ServeHTTP(w, r) }); recovered != nil {
			logger.Log.Error("handler panicked",
				zap.String("path", r.URL.Path),
				zap.Error(recovered.AsError()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Log.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start).Seconds()

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		status := strconv.Itoa(rec.status)
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint, status).Observe(duration)
		metrics.APIRequestTotal.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}
