package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/metricstore"
)

const (
	defaultHeatmapLimit = 30000
	maxHeatmapLimit     = 100000
)

type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

// handleHeatmap streams sector polygons carrying one metric as a GeoJSON
// FeatureCollection. Geometry is simplified server-side; an optional bbox
// restricts the query to the viewport.
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	metric, ok := s.requireMetric(w, r)
	if !ok {
		return
	}

	simplify := floatParam(r, "simplify", 0.0002)
	limit := intParam(r, "limit", defaultHeatmapLimit)
	if limit > maxHeatmapLimit {
		limit = maxHeatmapLimit
	}

	col := pgx.Identifier{metric}.Sanitize()
	sql := fmt.Sprintf(
		`SELECT "CD_SETOR", %s, ST_AsGeoJSON(ST_Simplify(geom, $1))
		 FROM %s WHERE %s IS NOT NULL AND geom IS NOT NULL`,
		col, pgx.Identifier{s.cfg.SectorTable}.Sanitize(), col)
	args := []any{simplify}

	if bbox, ok, err := parseBBox(r.URL.Query().Get("bbox")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if ok {
		sql += " AND geom && ST_MakeEnvelope($2, $3, $4, $5, 4326)"
		args = append(args, bbox[0], bbox[1], bbox[2], bbox[3])
	}
	sql += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.pool.Query(r.Context(), sql, args...)
	if err != nil {
		zap.L().Error("api: heatmap query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	fc := featureCollection{Type: "FeatureCollection", Features: []feature{}}
	for rows.Next() {
		var code string
		var value float64
		var geom []byte
		if err := rows.Scan(&code, &value, &geom); err != nil {
			zap.L().Error("api: heatmap scan", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		if len(geom) == 0 {
			continue
		}
		fc.Features = append(fc.Features, feature{
			Type:     "Feature",
			Geometry: json.RawMessage(geom),
			Properties: map[string]any{
				"code":  code,
				metric:  value,
				"value": value,
			},
		})
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("api: heatmap rows", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, fc)
}

// handlePoints returns one representative point per sector, optionally
// snapped to a grid to thin dense areas. Lighter than /heatmap for large
// viewports.
func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	metric, ok := s.requireMetric(w, r)
	if !ok {
		return
	}

	limit := intParam(r, "limit", defaultHeatmapLimit)
	if limit > maxHeatmapLimit {
		limit = maxHeatmapLimit
	}
	grid := floatParam(r, "grid", 0)

	pointExpr := "ST_PointOnSurface(geom)"
	if grid > 0 {
		pointExpr = fmt.Sprintf("ST_SnapToGrid(ST_PointOnSurface(geom), %g)", grid)
	}

	col := pgx.Identifier{metric}.Sanitize()
	sql := fmt.Sprintf(
		`SELECT %s, ST_X(p), ST_Y(p) FROM (
			SELECT %s, %s AS p FROM %s
			WHERE %s IS NOT NULL AND geom IS NOT NULL LIMIT %d
		 ) q`,
		col, col, pointExpr, pgx.Identifier{s.cfg.SectorTable}.Sanitize(), col, limit)

	rows, err := s.pool.Query(r.Context(), sql)
	if err != nil {
		zap.L().Error("api: points query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	type point struct {
		Lon   float64 `json:"lon"`
		Lat   float64 `json:"lat"`
		Value float64 `json:"value"`
	}
	points := []point{}
	for rows.Next() {
		var p point
		if err := rows.Scan(&p.Value, &p.Lon, &p.Lat); err != nil {
			zap.L().Error("api: points scan", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"metric": metric, "points": points})
}

// requireMetric validates the metric query parameter against the sector
// table's schema. Unknown or unsafe names are rejected before any SQL is
// built from them.
func (s *Server) requireMetric(w http.ResponseWriter, r *http.Request) (string, bool) {
	metric := r.URL.Query().Get("metric")
	return s.checkMetric(w, r, metric)
}

func (s *Server) checkMetric(w http.ResponseWriter, r *http.Request, metric string) (string, bool) {
	if metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return "", false
	}
	if !metricNamePat.MatchString(metric) {
		writeError(w, http.StatusBadRequest, "invalid metric name")
		return "", false
	}
	exists, err := metricstore.ColumnExists(r.Context(), s.pool, s.cfg.SectorTable, metric)
	if err != nil {
		zap.L().Error("api: check metric", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metric lookup failed")
		return "", false
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown metric %q", metric))
		return "", false
	}
	return metric, true
}

// parseBBox parses "minLon,minLat,maxLon,maxLat". The middle return reports
// whether a bbox was provided at all.
func parseBBox(raw string) ([4]float64, bool, error) {
	var bbox [4]float64
	if raw == "" {
		return bbox, false, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return bbox, false, fmt.Errorf("bbox must have 4 comma-separated values")
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bbox, false, fmt.Errorf("bbox value %q is not a number", p)
		}
		bbox[i] = v
	}
	if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
		return bbox, false, fmt.Errorf("bbox min must be less than max")
	}
	return bbox, true, nil
}

func floatParam(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
