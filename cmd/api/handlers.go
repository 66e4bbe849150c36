package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alim08/partner_events/pkg/cache"
	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/models"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	msgMissingParams   = "missed required query params starts_at or ends_at."
	msgInvalidDatetime = "invalid datetime format"
	msgInvertedWindow  = "starts_at datetime later than ends_at"
)

// Response is the envelope of every API reply. Exactly one of Data and
// Error is non-null.
type Response struct {
	Data  interface{} `json:"data"`
	Error *ErrorBody  `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SearchData struct {
	Events []models.EventSummary `json:"events"`
}

// pinger is implemented by cache backends that hold a connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server serves cache queries and schedules ingestion for queried windows.
type Server struct {
	cache   cache.EventCache
	trigger func(models.Window)
}

func NewServer(c cache.EventCache, trigger func(models.Window)) *Server {
	return &Server{cache: c, trigger: trigger}
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Error: &ErrorBody{Code: strconv.Itoa(status), Message: message}})
}

var errZeroInstant = errors.New("zero instant")

// parseInstant accepts RFC 3339 timestamps only; a zone designator is
// required. The zero instant is rejected since a Window treats it as unset.
func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	if t.IsZero() {
		return time.Time{}, errZeroInstant
	}
	return t, nil
}

// searchHandler answers from the cache as it is now, then schedules an
// ingestion run for the same window. The response never reflects that run.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startsAt, endsAt := q.Get("starts_at"), q.Get("ends_at")
	if startsAt == "" || endsAt == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	from, err := parseInstant(startsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidDatetime)
		return
	}
	to, err := parseInstant(endsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidDatetime)
		return
	}

	window := models.NewWindow(from, to)
	if window.From.After(window.To) {
		writeError(w, http.StatusBadRequest, msgInvertedWindow)
		return
	}
	if err := window.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidDatetime)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	events, err := s.cache.Query(ctx, window.From, window.To)
	if err != nil {
		logger.Log.Error("cache query failed", zap.Stringer("window", window), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}
	if events == nil {
		events = []models.EventSummary{}
	}

	writeJSON(w, http.StatusOK, Response{Data: SearchData{Events: events}})

	s.trigger(window)
}

// healthHandler returns server health status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.cache.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logger.Log.Warn("cache health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
