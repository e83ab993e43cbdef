package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/metricstore"
)

const (
	defaultStatsBins   = 20
	defaultStatsSample = 2000
	maxStatsSample     = 20000
)

// numericTypes are the information_schema data types exposed as metrics.
var numericTypes = map[string]bool{
	"numeric":          true,
	"double precision": true,
	"real":             true,
	"integer":          true,
	"bigint":           true,
}

// handleMetrics lists the numeric sector columns together with how many
// sectors carry a value for each.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	cols, err := metricstore.ListColumns(r.Context(), s.pool, s.cfg.SectorTable)
	if err != nil {
		zap.L().Error("api: list columns", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "column listing failed")
		return
	}

	var metrics []string
	for _, c := range cols {
		if numericTypes[c.DataType] {
			metrics = append(metrics, c.Name)
		}
	}

	type metricInfo struct {
		Name     string  `json:"name"`
		Coverage float64 `json:"coverage"`
		Count    int64   `json:"count"`
	}
	out := []metricInfo{}

	if len(metrics) > 0 {
		exprs := make([]string, 0, len(metrics)+1)
		exprs = append(exprs, "COUNT(*)")
		for _, m := range metrics {
			exprs = append(exprs, fmt.Sprintf("COUNT(%s)", pgx.Identifier{m}.Sanitize()))
		}
		sql := fmt.Sprintf("SELECT %s FROM %s",
			strings.Join(exprs, ", "), pgx.Identifier{s.cfg.SectorTable}.Sanitize())

		counts := make([]int64, len(metrics)+1)
		dest := make([]any, len(counts))
		for i := range counts {
			dest[i] = &counts[i]
		}
		if err := s.pool.QueryRow(r.Context(), sql).Scan(dest...); err != nil {
			zap.L().Error("api: metric coverage", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "coverage query failed")
			return
		}

		total := counts[0]
		for i, m := range metrics {
			info := metricInfo{Name: m, Count: counts[i+1]}
			if total > 0 {
				info.Coverage = float64(counts[i+1]) / float64(total)
			}
			out = append(out, info)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"table":   s.cfg.SectorTable,
		"metrics": out,
	})
}

type statsResponse struct {
	MetricX     string       `json:"metric_x"`
	MetricY     string       `json:"metric_y"`
	Method      string       `json:"method"`
	Demean      string       `json:"demean,omitempty"`
	N           int64        `json:"n"`
	Correlation *float64     `json:"correlation"`
	Bins        []statsBin   `json:"bins"`
	Pairs       [][2]float64 `json:"pairs"`
}

type statsBin struct {
	XMid  float64 `json:"x_mid"`
	MeanY float64 `json:"mean_y"`
	Count int64   `json:"count"`
}

// handleStats computes a bivariate summary for two metrics: a correlation
// coefficient, binned means of y over x, and a sampled scatter. Spearman is
// computed as Pearson over percent ranks; municipal demeaning subtracts the
// per-municipality mean from both sides before any statistic.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	metricX, ok := s.checkMetric(w, r, r.URL.Query().Get("metric_x"))
	if !ok {
		return
	}
	metricY, ok := s.checkMetric(w, r, r.URL.Query().Get("metric_y"))
	if !ok {
		return
	}

	method := r.URL.Query().Get("method")
	if method == "" {
		method = "pearson"
	}
	if method != "pearson" && method != "spearman" {
		writeError(w, http.StatusBadRequest, "method must be pearson or spearman")
		return
	}

	demean := r.URL.Query().Get("demean")
	if demean != "" && demean != "municipal" {
		writeError(w, http.StatusBadRequest, "demean must be empty or municipal")
		return
	}

	bins := intParam(r, "bins", defaultStatsBins)
	sample := intParam(r, "sample", defaultStatsSample)
	if sample > maxStatsSample {
		sample = maxStatsSample
	}

	base := s.pairsCTE(metricX, metricY, demean, method)
	resp := statsResponse{MetricX: metricX, MetricY: metricY, Method: method, Demean: demean}

	// Correlation over the full pair set.
	corrSQL := base + " SELECT COUNT(*), corr(x, y) FROM pairs"
	var corr *float64
	if err := s.pool.QueryRow(r.Context(), corrSQL).Scan(&resp.N, &corr); err != nil {
		zap.L().Error("api: stats correlation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	resp.Correlation = corr

	// Binned means of y over equal-width x buckets.
	binSQL := base + fmt.Sprintf(`, bounds AS (
			SELECT MIN(x) AS lo, MAX(x) AS hi FROM pairs
		)
		SELECT
			b.lo + (width_bucket(p.x, b.lo, b.hi + 1e-9, %d) - 0.5) * (b.hi + 1e-9 - b.lo) / %d,
			AVG(p.y), COUNT(*)
		FROM pairs p, bounds b
		GROUP BY 1 ORDER BY 1`, bins, bins)
	rows, err := s.pool.Query(r.Context(), binSQL)
	if err != nil {
		zap.L().Error("api: stats bins", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	resp.Bins = []statsBin{}
	for rows.Next() {
		var b statsBin
		if err := rows.Scan(&b.XMid, &b.MeanY, &b.Count); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, "stats scan failed")
			return
		}
		resp.Bins = append(resp.Bins, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	// Sampled scatter for plotting.
	pairSQL := base + fmt.Sprintf(" SELECT x, y FROM pairs ORDER BY random() LIMIT %d", sample)
	rows, err = s.pool.Query(r.Context(), pairSQL)
	if err != nil {
		zap.L().Error("api: stats sample", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	resp.Pairs = [][2]float64{}
	for rows.Next() {
		var p [2]float64
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, "stats scan failed")
			return
		}
		resp.Pairs = append(resp.Pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// pairsCTE builds the WITH clause producing (x, y) pairs after the requested
// transforms. Metric names have already been validated against the schema.
func (s *Server) pairsCTE(metricX, metricY, demean, method string) string {
	colX := pgx.Identifier{metricX}.Sanitize()
	colY := pgx.Identifier{metricY}.Sanitize()
	table := pgx.Identifier{s.cfg.SectorTable}.Sanitize()

	raw := fmt.Sprintf(`raw AS (
		SELECT %s::float8 AS x, %s::float8 AS y, "CD_MUN" AS mun
		FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL
	)`, colX, colY, table, colX, colY)

	stage := "raw"
	cte := "WITH " + raw

	if demean == "municipal" {
		cte += `, demeaned AS (
			SELECT x - AVG(x) OVER (PARTITION BY mun) AS x,
			       y - AVG(y) OVER (PARTITION BY mun) AS y
			FROM raw
		)`
		stage = "demeaned"
	}

	if method == "spearman" {
		cte += fmt.Sprintf(`, ranked AS (
			SELECT PERCENT_RANK() OVER (ORDER BY x) AS x,
			       PERCENT_RANK() OVER (ORDER BY y) AS y
			FROM %s
		)`, stage)
		stage = "ranked"
	}

	cte += fmt.Sprintf(", pairs AS (SELECT x, y FROM %s)", stage)
	return cte
}
