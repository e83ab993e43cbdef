package shapeload

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/db"
)

const defaultBatchSize = 10000

// Load replaces the dataset's table with the contents of the shapefile at
// shpPath. The table is recreated with one TEXT column per attribute field
// plus a geometry column; coordinates published in a projected CRS are
// transformed to WGS84 after loading.
func Load(ctx context.Context, pool db.Pool, shpPath string, ds Dataset) (int64, error) {
	log := zap.L().With(
		zap.String("component", "shapeload"),
		zap.String("dataset", ds.Name),
	)

	rows, err := ParseShapefile(shpPath, ds)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, eris.Errorf("shapeload: shapefile %s has no loadable records", shpPath)
	}
	log.Info("parsed shapefile", zap.String("path", shpPath), zap.Int("records", len(rows)))

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return 0, eris.Wrap(err, "shapeload: ensure postgis extension")
	}

	if err := recreateTable(ctx, pool, ds); err != nil {
		return 0, err
	}

	columns := make([]string, 0, len(ds.Fields)+1)
	columns = append(columns, ds.Fields...)
	columns = append(columns, "geom")

	var loaded int64
	for start := 0; start < len(rows); start += defaultBatchSize {
		end := min(start+defaultBatchSize, len(rows))
		n, err := db.CopyFrom(ctx, pool, ds.Table, columns, rows[start:end])
		if err != nil {
			return loaded, err
		}
		loaded += n
	}

	if ds.SourceSRID != SRIDWGS84 {
		log.Info("reprojecting to WGS84", zap.Int("source_srid", ds.SourceSRID))
		transform := fmt.Sprintf(
			"UPDATE %s SET geom = ST_Transform(geom, %d) WHERE geom IS NOT NULL",
			pgx.Identifier{ds.Table}.Sanitize(), SRIDWGS84)
		if _, err := pool.Exec(ctx, transform); err != nil {
			return loaded, eris.Wrapf(err, "shapeload: reproject %s", ds.Table)
		}
	}

	if ds.GeomIndex {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)",
			pgx.Identifier{"idx_" + ds.Table + "_geom"}.Sanitize(),
			pgx.Identifier{ds.Table}.Sanitize())
		if _, err := pool.Exec(ctx, idx); err != nil {
			return loaded, eris.Wrapf(err, "shapeload: create spatial index on %s", ds.Table)
		}
	}

	log.Info("dataset loaded", zap.String("table", ds.Table), zap.Int64("rows", loaded))
	return loaded, nil
}

// recreateTable drops and recreates the destination table. A full replace
// mirrors how the source datasets are published: complete snapshots, not
// deltas.
func recreateTable(ctx context.Context, pool db.Pool, ds Dataset) error {
	drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{ds.Table}.Sanitize())
	if _, err := pool.Exec(ctx, drop); err != nil {
		return eris.Wrapf(err, "shapeload: drop table %s", ds.Table)
	}

	cols := make([]string, 0, len(ds.Fields)+1)
	for _, f := range ds.Fields {
		cols = append(cols, fmt.Sprintf("%s TEXT", pgx.Identifier{f}.Sanitize()))
	}
	// Generic geometry type: source files mix Polygon and MultiPolygon.
	cols = append(cols, "geom geometry")

	create := fmt.Sprintf("CREATE TABLE %s (%s)",
		pgx.Identifier{ds.Table}.Sanitize(), strings.Join(cols, ", "))
	if _, err := pool.Exec(ctx, create); err != nil {
		return eris.Wrapf(err, "shapeload: create table %s", ds.Table)
	}
	return nil
}
