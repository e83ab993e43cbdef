package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "sp_setores", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"sp_setores"}, []string{"cd_setor", "geom"}).WillReturnResult(3)

	rows := [][]any{{"355030855000001", nil}, {"355030855000002", nil}, {"355030855000003", nil}}
	n, err := CopyFrom(context.Background(), mock, "sp_setores", []string{"cd_setor", "geom"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"sp_setores"}, []string{"cd_setor"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"355030855000001"}}
	_, err = CopyFrom(context.Background(), mock, "sp_setores", []string{"cd_setor"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO sp_setores")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromTx_EmptyRows(t *testing.T) {
	n, err := CopyFromTx(context.TODO(), nil, "staging", []string{"a"}, [][]any{})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
