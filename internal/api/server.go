// Package api serves the read-only HTTP endpoints over the sector and
// station tables: heatmap geometry, metric listings, bivariate stats and
// station lookups.
package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/db"
)

// Config holds the server's table names and CORS policy.
type Config struct {
	SectorTable    string
	POITable       string
	AllowedOrigins []string
}

// Server answers the HTTP API from a Postgres/PostGIS pool.
type Server struct {
	pool db.Pool
	cfg  Config
}

// NewServer creates an API server.
func NewServer(pool db.Pool, cfg Config) *Server {
	return &Server{pool: pool, cfg: cfg}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/heatmap", s.handleHeatmap)
	r.Get("/points", s.handlePoints)
	r.Get("/stats", s.handleStats)
	r.Get("/stations", s.handleStations)
	r.Get("/lines", s.handleLines)
	r.Get("/line_extent", s.handleLineExtent)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// metricNamePat constrains metric query parameters to plain column names so
// they can be interpolated into SQL after an information_schema check.
var metricNamePat = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
