package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/geosampa/censo-cli/internal/harmonize"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadGroupedCSV(t *testing.T) {
	path := writeTempCSV(t, `unit_code,label,value
3550308,Até 1/2 salário mínimo,120
3550308,Mais de 1/2 a 1 salário mínimo,80
3550308,sem rendimento,
3509502,Mais de 2 salários mínimos,40
`)

	rows, err := readGroupedCSV(path)
	require.NoError(t, err)
	// The row with an empty value is skipped.
	require.Len(t, rows, 3)
	assert.Equal(t, "3550308", rows[0].UnitCode)
	assert.Equal(t, "Até 1/2 salário mínimo", rows[0].Label)
	assert.InDelta(t, 120.0, rows[0].Value, 0.001)
	assert.Equal(t, "3509502", rows[2].UnitCode)
}

func TestReadGroupedCSV_PortugueseHeader(t *testing.T) {
	path := writeTempCSV(t, `Codigo,Classe,Valor
3550308,Até 1 salário mínimo,55
`)

	rows, err := readGroupedCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "3550308", rows[0].UnitCode)
}

func TestReadGroupedCSV_MissingColumn(t *testing.T) {
	path := writeTempCSV(t, `unit_code,value
3550308,120
`)

	_, err := readGroupedCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing a "label" column`)
}

func TestReadValueCSV(t *testing.T) {
	path := writeTempCSV(t, `unit_code,value
3550308,1850.5
3509502,920
bad-row,not-a-number
`)

	rows, err := readValueCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "3550308", rows[0].UnitCode)
	assert.InDelta(t, 1850.5, rows[0].Value, 0.001)
}

func TestReadCSV_MissingFile(t *testing.T) {
	_, err := readGroupedCSV("/nonexistent/input.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open csv")
}

func TestWriteReport_File(t *testing.T) {
	report := &harmonize.Report{
		RunID:         "run-1",
		Mode:          "grouped",
		RowsSeen:      10,
		Units:         2,
		Granularity:   "municipality",
		JoinColumn:    "CD_MUN",
		RowsUpdated:   310,
		UpdateApplied: true,
		MinimumWage:   1212,
	}

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, writeReport(report, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got harmonize.Report
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, *report, got)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"censo", "geo", "features", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	censoNames := map[string]bool{}
	for _, c := range censoCmd.Commands() {
		censoNames[c.Name()] = true
	}
	assert.True(t, censoNames["income"])
	assert.True(t, censoNames["value"])

	geoNames := map[string]bool{}
	for _, c := range geoCmd.Commands() {
		geoNames[c.Name()] = true
	}
	assert.True(t, geoNames["load-sectors"])
	assert.True(t, geoNames["load-pois"])
	assert.True(t, geoNames["status"])
}
