package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/grid"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "london", cfg.Region.Name)
	assert.Equal(t, grid.BBox{MinX: 503000, MinY: 155000, MaxX: 562000, MaxY: 201000}, cfg.Region.BBox())
	assert.Equal(t, []string{"./data"}, cfg.Ingest.Dirs)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Empty(t, cfg.Transit.LinesFile)
	assert.Equal(t, []string{"no2", "pm10", "pm25"}, cfg.Forecast.Pollutants)
	assert.Equal(t, 1000, cfg.Forecast.Stride)
	assert.Equal(t, "µg m-3", cfg.Forecast.Units)
	assert.Equal(t, "annual mean", cfg.Forecast.Metric)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "airgrid.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, time.Hour, cfg.Server.JobTTL())
	assert.Equal(t, "./data", cfg.Fetch.DestDir)
	assert.Equal(t, "airgrid/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Empty(t, cfg.Fetch.Sources)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
region:
  name: camden
  min_x: 525000
  max_x: 531000
ingest:
  dirs: [./laei, ./transit]
forecast:
  pollutants: [no2]
store:
  driver: postgres
  database_url: postgres://localhost/airgrid
  max_conns: 4
fetch:
  sources:
    - https://data.london.gov.uk/download/laei-2013.zip
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "camden", cfg.Region.Name)
	assert.Equal(t, 525000, cfg.Region.MinX)
	assert.Equal(t, 155000, cfg.Region.MinY)
	assert.Equal(t, []string{"./laei", "./transit"}, cfg.Ingest.Dirs)
	assert.Equal(t, []string{"no2"}, cfg.Forecast.Pollutants)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Len(t, cfg.Fetch.Sources, 1)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("AIRGRID_LOG_LEVEL", "warn")
	t.Setenv("AIRGRID_SERVER_PORT", "3000")
	t.Setenv("AIRGRID_TRANSIT_LINES_FILE", "/etc/airgrid/lines.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/etc/airgrid/lines.yaml", cfg.Transit.LinesFile)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing region name", func(c *Config) { c.Region.Name = " " }, "region.name"},
		{"inverted region", func(c *Config) { c.Region.MinX, c.Region.MaxX = 10, 5 }, "min_x"},
		{"zero concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }, "ingest.concurrency"},
		{"zero stride", func(c *Config) { c.Forecast.Stride = 0 }, "forecast.stride"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
