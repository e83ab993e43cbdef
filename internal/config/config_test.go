package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sp_setores", cfg.Store.SectorTable)
	assert.Equal(t, "pois_metro_sp", cfg.Store.POITable)
	assert.Equal(t, "censo_renda_staging", cfg.Store.StagingTable)
	assert.Equal(t, "https://servicodados.ibge.gov.br/api/v3/agregados", cfg.IBGE.BaseURL)
	assert.Equal(t, 50, cfg.IBGE.ChunkSize)
	assert.Equal(t, 4, cfg.IBGE.Concurrency)
	assert.Equal(t, 60, cfg.IBGE.TimeoutSecs)
	assert.Equal(t, 3, cfg.IBGE.MaxRetries)
	assert.Equal(t, "vl_renda", cfg.Censo.MetricColumn)
	assert.Equal(t, "vl_renda_setor", cfg.Censo.SectorMetricColumn)
	assert.Equal(t, "2022", cfg.Censo.Period)
	assert.Equal(t, "distancia_metro_m", cfg.Features.DistanceColumn)
	assert.Equal(t, 31983, cfg.Features.MetricSRID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: postgres://localhost/censo
  staging_table: renda_staging
censo:
  period: "2010"
  minimum_wages:
    "2010": 510
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/censo", cfg.Store.DatabaseURL)
	assert.Equal(t, "renda_staging", cfg.Store.StagingTable)
	assert.Equal(t, "2010", cfg.Censo.Period)
	assert.InDelta(t, 510.0, cfg.Censo.MinimumWages["2010"], 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "sp_setores", cfg.Store.SectorTable)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
censo:
  period: "2010"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CENSO_LOG_LEVEL", "warn")
	t.Setenv("CENSO_CENSO_PERIOD", "2022")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "2022", cfg.Censo.Period)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CENSO_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.StagingTable = "censo_renda_staging"
	cfg.Censo.MetricColumn = "vl_renda"
	cfg.IBGE.ChunkSize = 50
	cfg.IBGE.Concurrency = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateHarmonize_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/censo"

	assert.NoError(t, cfg.Validate("harmonize"))
}

func TestValidateHarmonize_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Censo.MetricColumn = ""
	cfg.Store.StagingTable = ""

	err := cfg.Validate("harmonize")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "censo.metric_column is required")
	assert.Contains(t, err.Error(), "store.staging_table is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/censo"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/censo"

	cfg.IBGE.Concurrency = 0
	err := cfg.Validate("db")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ibge.concurrency must be between 1 and 32")

	cfg.IBGE.Concurrency = 33
	err = cfg.Validate("db")
	assert.Error(t, err)

	cfg.IBGE.Concurrency = 32
	assert.NoError(t, cfg.Validate("db"))
}

func TestValidateChunkSize(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/censo"

	cfg.IBGE.ChunkSize = 0
	err := cfg.Validate("db")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ibge.chunk_size must be >= 1")
}
