package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type station struct {
	Name    string  `json:"name"`
	Line    string  `json:"line"`
	Company string  `json:"company,omitempty"`
	Status  string  `json:"status,omitempty"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
}

// handleStations lists metro stations with WGS84 coordinates, optionally
// filtered to one line.
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	sql := fmt.Sprintf(
		`SELECT emt_nome, emt_linha, emt_empres, emt_situac, ST_X(geom), ST_Y(geom)
		 FROM %s WHERE geom IS NOT NULL`,
		pgx.Identifier{s.cfg.POITable}.Sanitize())
	var args []any
	if line := r.URL.Query().Get("line"); line != "" {
		sql += " AND emt_linha = $1"
		args = append(args, line)
	}
	sql += " ORDER BY emt_nome"

	rows, err := s.pool.Query(r.Context(), sql, args...)
	if err != nil {
		zap.L().Error("api: stations query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	stations := []station{}
	for rows.Next() {
		var st station
		var company, status *string
		if err := rows.Scan(&st.Name, &st.Line, &company, &status, &st.Lon, &st.Lat); err != nil {
			zap.L().Error("api: stations scan", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		if company != nil {
			st.Company = *company
		}
		if status != nil {
			st.Status = *status
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stations": stations})
}

// handleLines lists the distinct metro lines.
func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	sql := fmt.Sprintf(
		"SELECT DISTINCT emt_linha FROM %s WHERE emt_linha IS NOT NULL ORDER BY 1",
		pgx.Identifier{s.cfg.POITable}.Sanitize())
	rows, err := s.pool.Query(r.Context(), sql)
	if err != nil {
		zap.L().Error("api: lines query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	lines := []string{}
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// handleLineExtent returns the bounding box of one line's stations, for
// zoom-to-line behavior in map clients.
func (s *Server) handleLineExtent(w http.ResponseWriter, r *http.Request) {
	line := r.URL.Query().Get("line")
	if line == "" {
		writeError(w, http.StatusBadRequest, "line is required")
		return
	}

	sql := fmt.Sprintf(
		`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e)
		 FROM (SELECT ST_Extent(geom) AS e FROM %s WHERE emt_linha = $1) q
		 WHERE e IS NOT NULL`,
		pgx.Identifier{s.cfg.POITable}.Sanitize())

	var minLon, minLat, maxLon, maxLat float64
	err := s.pool.QueryRow(r.Context(), sql, line).Scan(&minLon, &minLat, &maxLon, &maxLat)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown line %q", line))
		return
	}
	if err != nil {
		zap.L().Error("api: line extent query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"line": line,
		"bbox": []float64{minLon, minLat, maxLon, maxLat},
	})
}
