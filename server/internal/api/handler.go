package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/server/internal/alerts"
	"github.com/tems/tems/server/internal/config"
	"github.com/tems/tems/server/internal/metrics"
	"github.com/tems/tems/server/internal/store"
)

// requestTimeout bounds every /api/v1 and /predict request. The OTLP and
// stream routes are excluded.
const requestTimeout = 30 * time.Second

// Options wires the handler to the rest of the server. Only Store is
// required.
type Options struct {
	Store    *store.Store
	Alerts   *alerts.Engine
	Metrics  *metrics.Metrics
	Pipeline *risk.Pipeline
	Predict  config.PredictConfig

	// OTLP serves POST /v1/logs when set.
	OTLP http.Handler
	// Stream serves GET /ws/stream when set.
	Stream http.Handler
}

// Handler is the HTTP handler for the whole server surface.
type Handler struct {
	store    *store.Store
	alerts   *alerts.Engine
	metrics  *metrics.Metrics
	pipeline *risk.Pipeline
	predict  config.PredictConfig
	router   chi.Router
	now      func() time.Time
}

// New creates a Handler and registers all routes.
func New(o Options) *Handler {
	h := &Handler{
		store:    o.Store,
		alerts:   o.Alerts,
		metrics:  o.Metrics,
		pipeline: o.Pipeline,
		predict:  o.Predict,
		now:      time.Now,
	}
	if h.pipeline == nil {
		h.pipeline = risk.New()
	}
	if h.predict.MaxEvents <= 0 {
		h.predict.MaxEvents = config.DefaultPredictMaxEvents
	}
	if h.predict.MaxBodyBytes <= 0 {
		h.predict.MaxBodyBytes = config.DefaultPredictMaxBody
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", h.liveness)
	r.Handle("/metrics", h.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/predict", h.predictBatch)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", h.health)
			r.Get("/sources", h.listSources)
			r.Get("/sources/{id}", h.getSource)
			r.Get("/alerts", h.listAlerts)
			r.Get("/snapshot", h.snapshot)
		})
	})

	if o.OTLP != nil {
		r.Method(http.MethodPost, "/v1/logs", o.OTLP)
	}
	if o.Stream != nil {
		r.Method(http.MethodGet, "/ws/stream", o.Stream)
	}

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// liveness returns GET /health. It answers as long as the process is up.
func (h *Handler) liveness(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// predictBatch returns POST /predict: the prediction for one JSON array of
// raw events, scored on its own without touching any source window.
func (h *Handler) predictBatch(w http.ResponseWriter, r *http.Request) {
	reply := func(code int, v any) {
		h.metrics.Predict(code)
		jsonResp(w, code, v)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.predict.MaxBodyBytes))
	var raws []risk.RawEvent
	if err := dec.Decode(&raws); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			reply(http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		reply(http.StatusBadRequest, errorResponse{Error: "malformed JSON: " + err.Error()})
		return
	}
	if raws == nil {
		reply(http.StatusBadRequest, errorResponse{Error: "body must be a JSON array of events"})
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		reply(http.StatusBadRequest, errorResponse{Error: "malformed JSON: trailing data after array"})
		return
	}
	if len(raws) > h.predict.MaxEvents {
		reply(http.StatusBadRequest, errorResponse{
			Error: "batch exceeds max_events",
		})
		return
	}

	start := time.Now()
	pred, err := h.pipeline.Run(raws)
	h.metrics.ObserveScore(time.Since(start))
	if err != nil {
		var ve *risk.ValidationError
		if errors.As(err, &ve) {
			reply(http.StatusBadRequest, validationErrorResponse{
				Error: ve.Error(),
				Index: ve.Index,
				Field: ve.Field,
			})
			return
		}
		slog.Error("api: predict failed", "err", err)
		reply(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	reply(http.StatusOK, pred)
}

// health returns GET /api/v1/health: fleet score, label and counts.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, buildHealth(h.store.List(), h.alerts))
}

// listSources returns GET /api/v1/sources: all live sources.
func (h *Handler) listSources(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	out := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSourceResponse(e, h.alerts))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSource returns GET /api/v1/sources/{id}: one live source.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.store.Get(id)
	// Stale entries are treated as not found.
	if !ok || !h.store.Live(e, h.now()) {
		jsonErr(w, http.StatusNotFound, "source not found")
		return
	}
	jsonResp(w, http.StatusOK, toSourceResponse(e, h.alerts))
}

// listAlerts returns GET /api/v1/alerts: firing alerts and those resolved in
// the past hour.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	out := []*alerts.Alert{}
	if h.alerts != nil {
		out = h.alerts.Active()
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot: a full JSON dump of all live sources.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.alerts, h.now()))
}

// BuildSnapshot assembles the full state served by /api/v1/snapshot and
// pushed over the WebSocket stream. al may be nil.
func BuildSnapshot(st *store.Store, al *alerts.Engine, now time.Time) SnapshotResponse {
	entries := st.List()
	sources := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, toSourceResponse(e, al))
	}
	active := []*alerts.Alert{}
	if al != nil {
		active = al.Active()
	}
	return SnapshotResponse{
		Health:      buildHealth(entries, al),
		Sources:     sources,
		Alerts:      active,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// requestLogger logs one line per request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func buildHealth(entries []*store.Entry, al *alerts.Engine) HealthResponse {
	resp := HealthResponse{SourceCount: len(entries)}
	if al != nil {
		for _, a := range al.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}
	if len(entries) == 0 {
		resp.Label = "unknown"
		return resp
	}

	var total float64
	for _, e := range entries {
		total += e.Result.Prediction.Score
		if e.Result.Prediction.Degraded() {
			resp.DegradedCount++
		} else {
			resp.NormalCount++
		}
	}
	resp.OverallScore = total / float64(len(entries))
	label, _ := risk.Classify(resp.OverallScore)
	resp.Label = label.String()
	return resp
}

// toSourceResponse maps a store.Entry to its JSON representation.
func toSourceResponse(e *store.Entry, al *alerts.Engine) SourceResponse {
	r := e.Result
	var active int
	if al != nil {
		active = al.FiringFor(r.SourceID)
	}
	return SourceResponse{
		SourceID:     r.SourceID,
		SourceType:   r.SourceType,
		Vendor:       r.Vendor,
		Score:        r.Prediction.Score,
		Label:        r.Prediction.Label,
		Notes:        r.Prediction.Notes,
		EventCount:   r.EventCount,
		Features:     r.Prediction.Features,
		UptimePct:    r.UptimePct,
		LastError:    r.LastError,
		Cert:         r.Cert,
		ActiveAlerts: active,
		Diagnostics:  computeDiagnostics(r),
		LastSeen:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
