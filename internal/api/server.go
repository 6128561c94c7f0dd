package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"shielded-feed/internal/gateway"
	"shielded-feed/internal/metrics"
	"shielded-feed/internal/sampler"
	"shielded-feed/internal/timeline"
)

const maxBodyBytes = 1 << 20

// Invoker answers whitelisted RPC calls.
type Invoker interface {
	Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}

// SeriesSampler produces the shielded feed series.
type SeriesSampler interface {
	SampleDefault(ctx context.Context) (sampler.Series, error)
}

// EntrySource is the consumer pull interface.
type EntrySource interface {
	NextEntry() (timeline.Entry, time.Time)
	State() timeline.State
}

// Options tune the HTTP surface.
type Options struct {
	CacheMaxAge time.Duration
	Metrics     *metrics.Metrics
}

// Server exposes the gateway, the shielded feed and the current timeline entry.
// A nil gateway means the RPC endpoint is not configured.
type Server struct {
	gateway Invoker
	sampler SeriesSampler
	entries EntrySource
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs the HTTP server handlers.
func New(gw Invoker, s SeriesSampler, entries EntrySource, opts Options, logger zerolog.Logger) *Server {
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = gateway.DefaultTTL
	}
	return &Server{
		gateway: gw,
		sampler: s,
		entries: entries,
		opts:    opts,
		logger:  logger.With().Str("component", "api").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handler returns the routed handler with CORS and access logging applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})

	r.HandleFunc("/rpc", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/shielded", s.handleShielded).Methods(http.MethodGet)
	r.HandleFunc("/entry", s.handleEntry).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)

	return s.logRequests(withCORS(r))
}

// withCORS sets permissive CORS headers on every response and answers preflights.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id,omitempty"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  any             `json:"error"`
	ID     json.RawMessage `json:"id"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		notConfigured(w)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "could not read request body"})
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON-RPC request"})
		return
	}

	result, err := s.gateway.Invoke(r.Context(), req.Method, req.Params)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrMethodNotAllowed):
		writeJSON(w, http.StatusForbidden, errorBody{Error: fmt.Sprintf("Method '%s' not allowed", req.Method)})
		return
	case errors.Is(err, gateway.ErrInvalidParams):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	default:
		s.logger.Error().Err(err).Str("method", req.Method).Msg("rpc call failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	id := req.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	s.cacheable(w)
	writeJSON(w, http.StatusOK, rpcEnvelope{Result: result, ID: id})
}

type shieldedResponse struct {
	Data        sampler.Series `json:"data"`
	LatestBlock int64          `json:"latestBlock"`
	FetchedAt   string         `json:"fetchedAt"`
}

func (s *Server) handleShielded(w http.ResponseWriter, r *http.Request) {
	if s.sampler == nil {
		notConfigured(w)
		return
	}

	series, err := s.sampler.SampleDefault(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("shielded feed failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch data", Details: err.Error()})
		return
	}

	latest, _ := series.Last()
	s.cacheable(w)
	writeJSON(w, http.StatusOK, shieldedResponse{
		Data:        series,
		LatestBlock: latest.Height,
		FetchedAt:   s.now().Format(time.RFC3339Nano),
	})
}

type entryResponse struct {
	Entry        timeline.Entry `json:"entry"`
	State        timeline.State `json:"state"`
	RefreshAfter time.Time      `json:"refreshAfter"`
}

func (s *Server) handleEntry(w http.ResponseWriter, _ *http.Request) {
	if s.entries == nil {
		notConfigured(w)
		return
	}
	entry, after := s.entries.NextEntry()
	writeJSON(w, http.StatusOK, entryResponse{Entry: entry, State: s.entries.State(), RefreshAfter: after})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rpcConfigured": s.gateway != nil})
}

func (s *Server) cacheable(w http.ResponseWriter) {
	seconds := int(s.opts.CacheMaxAge / time.Second)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(seconds))
}

func notConfigured(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "rpc endpoint not configured"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
