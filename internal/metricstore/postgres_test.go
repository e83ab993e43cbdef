package metricstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geosampa/censo-cli/internal/harmonize"
)

func applyRequest(joinCol string) harmonize.ApplyRequest {
	return harmonize.ApplyRequest{
		TargetTable:  "sp_setores",
		MetricColumn: "vl_renda_setor",
		StagingTable: "censo_renda_staging",
		JoinColumn:   joinCol,
		Staged: []harmonize.StagedRow{
			{UnitCode: "3550308", Label: "Até 100", Value: 10},
			{UnitCode: "3550308", Label: "Mais de 100", Value: 20},
		},
		Mappings: []harmonize.Mapping{
			{UnitCode: "3550308", Value: 150},
		},
	}
}

func expectStaging(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`DROP TABLE IF EXISTS "censo_renda_staging"`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "censo_renda_staging"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"censo_renda_staging"}, []string{"unit_code", "label", "value"}).
		WillReturnResult(2)
}

func TestApply_UpdateByJoin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	// Metric column already exists.
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "vl_renda_setor").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	expectStaging(mock)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_harmonize_mapping"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_harmonize_mapping"}, []string{"unit_code", "value"}).
		WillReturnResult(1)
	mock.ExpectExec(`UPDATE "sp_setores" tgt SET "vl_renda_setor" = src.value`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 57))
	mock.ExpectCommit()

	store := NewPostgres(mock)
	updated, err := store.Apply(context.Background(), applyRequest("CD_MUN"))
	require.NoError(t, err)
	assert.Equal(t, int64(57), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_AddsMissingColumn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "vl_renda_setor").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`ALTER TABLE "sp_setores" ADD COLUMN "vl_renda_setor" NUMERIC`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	expectStaging(mock)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_harmonize_mapping"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_harmonize_mapping"}, []string{"unit_code", "value"}).
		WillReturnResult(1)
	mock.ExpectExec(`UPDATE "sp_setores"`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 57))
	mock.ExpectCommit()

	store := NewPostgres(mock)
	_, err = store.Apply(context.Background(), applyRequest("CD_MUN"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_UnsupportedGranularityStagesOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "vl_renda_setor").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	expectStaging(mock)
	mock.ExpectCommit()

	store := NewPostgres(mock)
	updated, err := store.Apply(context.Background(), applyRequest(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_RollsBackOnUpdateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "vl_renda_setor").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	expectStaging(mock)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_harmonize_mapping"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_harmonize_mapping"}, []string{"unit_code", "value"}).
		WillReturnResult(1)
	mock.ExpectExec(`UPDATE "sp_setores"`).
		WillReturnError(fmt.Errorf("deadlock detected"))
	mock.ExpectRollback()

	store := NewPostgres(mock)
	_, err = store.Apply(context.Background(), applyRequest("CD_MUN"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update sp_setores by CD_MUN")
}

func TestEnsureColumn_Idempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// First call adds the column, second finds it present; neither errors.
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "distancia_metro_m").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`ALTER TABLE "sp_setores" ADD COLUMN "distancia_metro_m" DOUBLE PRECISION`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "distancia_metro_m").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	require.NoError(t, EnsureColumn(context.Background(), mock, "sp_setores", "distancia_metro_m", "DOUBLE PRECISION"))
	require.NoError(t, EnsureColumn(context.Background(), mock, "sp_setores", "distancia_metro_m", "DOUBLE PRECISION"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "vl_renda").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", "nope").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))

	ok, err := ColumnExists(context.Background(), mock, "sp_setores", "vl_renda")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ColumnExists(context.Background(), mock, "sp_setores", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT column_name, data_type FROM information_schema.columns").
		WithArgs("sp_setores").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("CD_SETOR", "text").
			AddRow("vl_renda", "numeric"))

	cols, err := ListColumns(context.Background(), mock, "sp_setores")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "CD_SETOR", cols[0].Name)
	assert.Equal(t, "numeric", cols[1].DataType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"sp_setores"`, sanitizeTable("sp_setores"))
	assert.Equal(t, `"public"."sp_setores"`, sanitizeTable("public.sp_setores"))
}
