// Package features derives per-sector metrics from loaded geography, such as
// distance to the nearest metro station.
package features

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/geosampa/censo-cli/internal/db"
	"github.com/geosampa/censo-cli/internal/metricstore"
)

// DistanceOptions configures the nearest-station distance computation.
type DistanceOptions struct {
	SectorTable    string
	POITable       string
	DistanceColumn string // e.g. "distancia_metro_m"
	MetricSRID     int    // projected CRS used for metric distances
	PerLine        bool   // also compute one column per metro line
}

// Result reports what the computation touched.
type Result struct {
	SectorsUpdated int64
	Lines          []string
}

// NearestMetroDistance fills the distance column of every sector with the
// distance in meters to the closest station, using a KNN index scan to pick
// the candidate and a projected-CRS ST_Distance for the measurement. With
// PerLine set it repeats the computation per metro line into
// <column>_<LINE> columns.
func NearestMetroDistance(ctx context.Context, pool db.Pool, opts DistanceOptions) (*Result, error) {
	log := zap.L().With(zap.String("component", "features"))

	if err := metricstore.EnsureColumn(ctx, pool, opts.SectorTable, opts.DistanceColumn, "DOUBLE PRECISION"); err != nil {
		return nil, err
	}

	update := fmt.Sprintf(`
		UPDATE %s s
		SET %s = (
			SELECT ST_Distance(
				ST_Transform(s.geom, %d),
				ST_Transform(p.geom, %d)
			)
			FROM %s p
			ORDER BY s.geom <-> p.geom
			LIMIT 1
		)
		WHERE s.geom IS NOT NULL`,
		pgx.Identifier{opts.SectorTable}.Sanitize(),
		pgx.Identifier{opts.DistanceColumn}.Sanitize(),
		opts.MetricSRID, opts.MetricSRID,
		pgx.Identifier{opts.POITable}.Sanitize(),
	)
	tag, err := pool.Exec(ctx, update)
	if err != nil {
		return nil, eris.Wrapf(err, "features: update %s", opts.DistanceColumn)
	}

	result := &Result{SectorsUpdated: tag.RowsAffected()}
	log.Info("nearest-station distances updated",
		zap.String("column", opts.DistanceColumn),
		zap.Int64("sectors", result.SectorsUpdated),
	)

	if !opts.PerLine {
		return result, nil
	}

	lines, err := distinctLines(ctx, pool, opts.POITable)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		col := opts.DistanceColumn + "_" + LineSlug(line)
		if err := metricstore.EnsureColumn(ctx, pool, opts.SectorTable, col, "DOUBLE PRECISION"); err != nil {
			return nil, err
		}

		perLine := fmt.Sprintf(`
			UPDATE %s s
			SET %s = (
				SELECT ST_Distance(
					ST_Transform(s.geom, %d),
					ST_Transform(p.geom, %d)
				)
				FROM %s p
				WHERE p.emt_linha = $1
				ORDER BY s.geom <-> p.geom
				LIMIT 1
			)
			WHERE s.geom IS NOT NULL`,
			pgx.Identifier{opts.SectorTable}.Sanitize(),
			pgx.Identifier{col}.Sanitize(),
			opts.MetricSRID, opts.MetricSRID,
			pgx.Identifier{opts.POITable}.Sanitize(),
		)
		if _, err := pool.Exec(ctx, perLine, line); err != nil {
			return nil, eris.Wrapf(err, "features: update %s", col)
		}
		log.Info("per-line distance updated", zap.String("line", line), zap.String("column", col))
	}
	result.Lines = lines

	return result, nil
}

// distinctLines returns the metro lines present in the POI table.
func distinctLines(ctx context.Context, pool db.Pool, poiTable string) ([]string, error) {
	sql := fmt.Sprintf(
		"SELECT DISTINCT emt_linha FROM %s WHERE emt_linha IS NOT NULL ORDER BY 1",
		pgx.Identifier{poiTable}.Sanitize())
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "features: list metro lines")
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, eris.Wrap(err, "features: scan metro line")
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// LineSlug turns a metro line name into a safe column-name suffix:
// lowercased, accents stripped, anything but letters, digits and underscores
// removed ("Lilás" becomes "lilas").
func LineSlug(line string) string {
	s := strings.ToLower(strings.TrimSpace(line))
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}
	var b strings.Builder
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
