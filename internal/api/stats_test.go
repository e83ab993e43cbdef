package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectMetricExists(mock pgxmock.PgxPoolIface, metric string) {
	mock.ExpectQuery("SELECT 1 FROM information_schema.columns").
		WithArgs("sp_setores", metric).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
}

func TestMetrics(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery("SELECT column_name, data_type FROM information_schema.columns").
		WithArgs("sp_setores").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("CD_SETOR", "text").
			AddRow("vl_renda", "numeric").
			AddRow("distancia_metro_m", "double precision").
			AddRow("geom", "USER-DEFINED"))
	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\("vl_renda"\), COUNT\("distancia_metro_m"\)`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "c1", "c2"}).
			AddRow(int64(100), int64(80), int64(100)))

	rec := doGet(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Table   string `json:"table"`
		Metrics []struct {
			Name     string  `json:"name"`
			Coverage float64 `json:"coverage"`
			Count    int64   `json:"count"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "sp_setores", out.Table)
	require.Len(t, out.Metrics, 2)
	assert.Equal(t, "vl_renda", out.Metrics[0].Name)
	assert.InDelta(t, 0.8, out.Metrics[0].Coverage, 0.001)
	assert.Equal(t, int64(100), out.Metrics[1].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_Pearson(t *testing.T) {
	srv, mock := newTestServer(t)

	expectMetricExists(mock, "vl_renda")
	expectMetricExists(mock, "distancia_metro_m")

	corr := -0.42
	mock.ExpectQuery(`SELECT COUNT\(\*\), corr\(x, y\) FROM pairs`).
		WillReturnRows(pgxmock.NewRows([]string{"n", "corr"}).AddRow(int64(310), &corr))
	mock.ExpectQuery("width_bucket").
		WillReturnRows(pgxmock.NewRows([]string{"x_mid", "mean_y", "count"}).
			AddRow(500.0, 1200.0, int64(120)).
			AddRow(1500.0, 800.0, int64(190)))
	mock.ExpectQuery("ORDER BY random").
		WillReturnRows(pgxmock.NewRows([]string{"x", "y"}).
			AddRow(410.0, 1300.0).
			AddRow(1800.0, 650.0))

	rec := doGet(t, srv, "/stats?metric_x=vl_renda&metric_y=distancia_metro_m")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pearson", resp.Method)
	assert.Equal(t, int64(310), resp.N)
	require.NotNil(t, resp.Correlation)
	assert.InDelta(t, -0.42, *resp.Correlation, 0.001)
	require.Len(t, resp.Bins, 2)
	assert.InDelta(t, 500.0, resp.Bins[0].XMid, 0.001)
	require.Len(t, resp.Pairs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_SpearmanDemeaned(t *testing.T) {
	srv, mock := newTestServer(t)

	expectMetricExists(mock, "vl_renda")
	expectMetricExists(mock, "distancia_metro_m")

	corr := 0.1
	mock.ExpectQuery(`PERCENT_RANK`).
		WillReturnRows(pgxmock.NewRows([]string{"n", "corr"}).AddRow(int64(50), &corr))
	mock.ExpectQuery("width_bucket").
		WillReturnRows(pgxmock.NewRows([]string{"x_mid", "mean_y", "count"}))
	mock.ExpectQuery("ORDER BY random").
		WillReturnRows(pgxmock.NewRows([]string{"x", "y"}))

	rec := doGet(t, srv, "/stats?metric_x=vl_renda&metric_y=distancia_metro_m&method=spearman&demean=municipal")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "spearman", resp.Method)
	assert.Equal(t, "municipal", resp.Demean)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_BadMethod(t *testing.T) {
	srv, mock := newTestServer(t)

	expectMetricExists(mock, "vl_renda")
	expectMetricExists(mock, "distancia_metro_m")

	rec := doGet(t, srv, "/stats?metric_x=vl_renda&metric_y=distancia_metro_m&method=kendall")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats_NullCorrelation(t *testing.T) {
	srv, mock := newTestServer(t)

	expectMetricExists(mock, "vl_renda")
	expectMetricExists(mock, "distancia_metro_m")

	// corr() is NULL when there are fewer than two pairs.
	mock.ExpectQuery(`SELECT COUNT\(\*\), corr\(x, y\) FROM pairs`).
		WillReturnRows(pgxmock.NewRows([]string{"n", "corr"}).AddRow(int64(1), (*float64)(nil)))
	mock.ExpectQuery("width_bucket").
		WillReturnRows(pgxmock.NewRows([]string{"x_mid", "mean_y", "count"}))
	mock.ExpectQuery("ORDER BY random").
		WillReturnRows(pgxmock.NewRows([]string{"x", "y"}))

	rec := doGet(t, srv, "/stats?metric_x=vl_renda&metric_y=distancia_metro_m")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Correlation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
