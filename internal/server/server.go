// Package server exposes read-only campaign status over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Server serves campaign status from the store.
type Server struct {
	store          store.Store
	collector      *monitoring.Collector
	lookbackHours  int
	allowedOrigins []string
}

// New creates a Server. collector may be nil, which disables /metrics.
func New(st store.Store, collector *monitoring.Collector, lookbackHours int, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	return &Server{store: st, collector: collector, lookbackHours: lookbackHours, allowedOrigins: allowedOrigins}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", s.listCampaigns)
		r.Get("/{id}", s.getCampaign)
		r.Get("/{id}/records", s.listRecords)
		r.Get("/{id}/export", s.exportCampaign)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		respondError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	hours := s.lookbackHours
	if v, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && v > 0 {
		hours = v
	}
	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("server: collect metrics", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CampaignFilter{
		ParentSlug: q.Get("parent"),
		Status:     model.RunStatus(q.Get("status")),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	campaigns, err := s.store.ListCampaigns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list campaigns", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	respondJSON(w, http.StatusOK, campaigns)
}

type campaignStatus struct {
	*model.Campaign
	Records map[model.RecordStatus]int `json:"records"`
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	counts, err := s.store.CountRecords(r.Context(), id)
	if err != nil {
		zap.L().Error("server: count records", zap.String("campaign_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to count records")
		return
	}
	respondJSON(w, http.StatusOK, campaignStatus{Campaign: c, Records: counts})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recs, ok := s.records(w, r, id)
	if !ok {
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if recs == nil {
		recs = []model.CampaignRecord{}
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) exportCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recs, ok := s.records(w, r, id)
	if !ok {
		return
	}
	schema := r.URL.Query().Get("schema")
	if schema == "" {
		schema = export.SchemaAuto
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="approval_queue_`+id+`.csv"`)
	if err := export.WriteCSV(w, export.FromRecords(recs), schema); err != nil {
		zap.L().Error("server: write export", zap.String("campaign_id", id), zap.Error(err))
	}
}

// records loads a campaign's records, answering 404 for unknown campaigns.
func (s *Server) records(w http.ResponseWriter, r *http.Request, id string) ([]model.CampaignRecord, bool) {
	if _, err := s.store.GetCampaign(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return nil, false
	}
	recs, err := s.store.ListRecords(r.Context(), id)
	if err != nil {
		zap.L().Error("server: list records", zap.String("campaign_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return nil, false
	}
	return recs, true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
