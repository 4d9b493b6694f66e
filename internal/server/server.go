// Package server exposes the clustering engine over HTTP: marker lifecycle
// event ingestion, location reads, hierarchy changes, and the admin repair
// trigger.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/placemark/internal/config"
	"github.com/sells-group/placemark/internal/ingest"
	"github.com/sells-group/placemark/internal/location"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	svc     *ingest.Service
	store   location.Store
	limiter *rate.Limiter
}

// New builds a Server over the ingest service and registry.
func New(svc *ingest.Service, store location.Store, cfg config.ServerConfig) *Server {
	return &Server{
		svc:     svc,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
	}
}

// Router assembles the route tree with its middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.rateLimit)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/locations", func(r chi.Router) {
		r.Get("/", s.handleListLocations)
		r.Get("/{id}", s.handleGetLocation)
		r.Put("/{id}", s.handleUpdateMeta)
		r.Post("/{id}/type", s.handleTypeChange)
	})

	r.Route("/events", func(r chi.Router) {
		r.Post("/marker-created", s.handleMarkerCreated)
		r.Post("/marker-moved", s.handleMarkerMoved)
		r.Post("/marker-deleted", s.handleMarkerDeleted)
	})

	r.Post("/admin/repair", s.handleRepair)

	return r
}

// rateLimit rejects requests beyond the configured sustained rate.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, eris.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.store.ListLocations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if locs == nil {
		locs = []location.Location{}
	}
	writeJSON(w, http.StatusOK, locs)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := s.store.GetLocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleUpdateMeta(w http.ResponseWriter, r *http.Request) {
	var meta location.LocationMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.UpdateLocationMeta(r.Context(), id, meta); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	loc, err := s.store.GetLocation(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleTypeChange(w http.ResponseWriter, r *http.Request) {
	var change location.TypeChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}

	id, err := s.svc.LocationChanged(r.Context(), chi.URLParam(r, "id"), change)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"location_id": id})
}

func (s *Server) handleMarkerCreated(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMarker(w, r)
	if !ok {
		return
	}
	if err := s.svc.MarkerCreated(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "marker_id": m.ID})
}

func (s *Server) handleMarkerMoved(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMarker(w, r)
	if !ok {
		return
	}
	if err := s.svc.MarkerMoved(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "marker_id": m.ID})
}

func (s *Server) handleMarkerDeleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, eris.New("id is required"))
		return
	}
	if err := s.svc.MarkerDeleted(r.Context(), req.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "marker_id": req.ID})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RunOrphanRepair(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func decodeMarker(w http.ResponseWriter, r *http.Request) (*location.Marker, bool) {
	var m location.Marker
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return nil, false
	}
	if m.ID == "" {
		writeError(w, http.StatusBadRequest, eris.New("id is required"))
		return nil, false
	}
	return &m, true
}

// statusFor maps registry errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case eris.Is(err, location.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, location.ErrInvalidHierarchy):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
