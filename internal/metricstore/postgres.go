// Package metricstore applies harmonized metric batches to the sector table
// and answers schema questions about metric columns.
package metricstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geosampa/censo-cli/internal/db"
	"github.com/geosampa/censo-cli/internal/harmonize"
)

const mappingTempTable = "_tmp_harmonize_mapping"

// Postgres implements harmonize.Store against a Postgres/PostGIS database.
type Postgres struct {
	pool db.Pool
}

// NewPostgres creates a Postgres metric store.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Apply writes the batch inside a single transaction: ensure the metric
// column, replace the staging table, and (when a join column is resolved)
// update the target by join. A failure rolls everything back so a
// partially-applied batch is never visible.
func (s *Postgres) Apply(ctx context.Context, req harmonize.ApplyRequest) (int64, error) {
	log := zap.L().With(zap.String("component", "metricstore"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "metricstore: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	added, err := ensureColumnTx(ctx, tx, req.TargetTable, req.MetricColumn, "NUMERIC")
	if err != nil {
		return 0, err
	}
	if added {
		log.Info("added metric column",
			zap.String("table", req.TargetTable),
			zap.String("column", req.MetricColumn),
		)
	}

	if err := replaceStagingTx(ctx, tx, req.StagingTable, req.Staged); err != nil {
		return 0, err
	}

	var updated int64
	if req.JoinColumn != "" {
		updated, err = updateByJoinTx(ctx, tx, req)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "metricstore: commit tx")
	}

	return updated, nil
}

// ensureColumnTx adds the column if the target table does not already have
// it. Reports whether the column was added.
func ensureColumnTx(ctx context.Context, tx pgx.Tx, table, column, sqlType string) (bool, error) {
	var one int
	err := tx.QueryRow(ctx,
		`SELECT 1 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
		strings.ToLower(table), strings.ToLower(column),
	).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, eris.Wrapf(err, "metricstore: check column %s.%s", table, column)
	}

	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		sanitizeTable(table), pgx.Identifier{column}.Sanitize(), sqlType)
	if _, err := tx.Exec(ctx, alter); err != nil {
		return false, eris.Wrapf(err, "metricstore: add column %s.%s", table, column)
	}
	return true, nil
}

// replaceStagingTx drops and recreates the staging table, then bulk-loads the
// audit rows. The staging table is kept after commit for inspection.
func replaceStagingTx(ctx context.Context, tx pgx.Tx, staging string, rows []harmonize.StagedRow) error {
	drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", sanitizeTable(staging))
	if _, err := tx.Exec(ctx, drop); err != nil {
		return eris.Wrapf(err, "metricstore: drop staging %s", staging)
	}

	create := fmt.Sprintf(
		"CREATE TABLE %s (unit_code TEXT NOT NULL, label TEXT, value DOUBLE PRECISION)",
		sanitizeTable(staging))
	if _, err := tx.Exec(ctx, create); err != nil {
		return eris.Wrapf(err, "metricstore: create staging %s", staging)
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		var label any
		if r.Label != "" {
			label = r.Label
		}
		copyRows[i] = []any{r.UnitCode, label, r.Value}
	}
	if _, err := db.CopyFromTx(ctx, tx, staging, []string{"unit_code", "label", "value"}, copyRows); err != nil {
		return eris.Wrapf(err, "metricstore: load staging %s", staging)
	}
	return nil
}

// updateByJoinTx overwrites the metric column for target rows whose join key
// matches a harmonized mapping. Non-matching rows keep their previous value.
func updateByJoinTx(ctx context.Context, tx pgx.Tx, req harmonize.ApplyRequest) (int64, error) {
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s (unit_code TEXT NOT NULL, value DOUBLE PRECISION) ON COMMIT DROP",
		pgx.Identifier{mappingTempTable}.Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrap(err, "metricstore: create mapping temp table")
	}

	copyRows := make([][]any, len(req.Mappings))
	for i, m := range req.Mappings {
		copyRows[i] = []any{m.UnitCode, m.Value}
	}
	if _, err := db.CopyFromTx(ctx, tx, mappingTempTable, []string{"unit_code", "value"}, copyRows); err != nil {
		return 0, eris.Wrap(err, "metricstore: load mapping temp table")
	}

	update := fmt.Sprintf(
		`UPDATE %s tgt SET %s = src.value FROM %s src WHERE tgt.%s::text = src.unit_code`,
		sanitizeTable(req.TargetTable),
		pgx.Identifier{req.MetricColumn}.Sanitize(),
		pgx.Identifier{mappingTempTable}.Sanitize(),
		pgx.Identifier{req.JoinColumn}.Sanitize(),
	)
	tag, err := tx.Exec(ctx, update)
	if err != nil {
		return 0, eris.Wrapf(err, "metricstore: update %s by %s", req.TargetTable, req.JoinColumn)
	}
	return tag.RowsAffected(), nil
}

// EnsureColumn adds a column to a table if missing, outside any batch
// transaction. Used by the feature builders.
func EnsureColumn(ctx context.Context, pool db.Pool, table, column, sqlType string) error {
	var one int
	err := pool.QueryRow(ctx,
		`SELECT 1 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
		strings.ToLower(table), strings.ToLower(column),
	).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(err, "metricstore: check column %s.%s", table, column)
	}

	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		sanitizeTable(table), pgx.Identifier{column}.Sanitize(), sqlType)
	if _, err := pool.Exec(ctx, alter); err != nil {
		return eris.Wrapf(err, "metricstore: add column %s.%s", table, column)
	}
	return nil
}

// ColumnExists reports whether a public-schema table has the given column.
func ColumnExists(ctx context.Context, pool db.Pool, table, column string) (bool, error) {
	var one int
	err := pool.QueryRow(ctx,
		`SELECT 1 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
		strings.ToLower(table), strings.ToLower(column),
	).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, eris.Wrapf(err, "metricstore: check column %s.%s", table, column)
}

// Column describes one column of a table.
type Column struct {
	Name     string
	DataType string
}

// ListColumns returns the columns of a public-schema table in ordinal order.
func ListColumns(ctx context.Context, pool db.Pool, table string) ([]Column, error) {
	rows, err := pool.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`,
		strings.ToLower(table),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "metricstore: list columns of %s", table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, eris.Wrap(err, "metricstore: scan column row")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "metricstore: iterate column rows")
	}
	return cols, nil
}

// DistinctCodes returns the distinct non-null values of one column, as text.
// Used to enumerate municipality codes present in the sector table.
func DistinctCodes(ctx context.Context, pool db.Pool, table, column string) ([]string, error) {
	sql := fmt.Sprintf("SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL ORDER BY 1",
		pgx.Identifier{column}.Sanitize(), sanitizeTable(table), pgx.Identifier{column}.Sanitize())
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "metricstore: distinct %s.%s", table, column)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrap(err, "metricstore: scan code")
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "metricstore: iterate %s.%s", table, column)
	}
	return codes, nil
}

// sanitizeTable handles schema-qualified table names like "public.sp_setores".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}
