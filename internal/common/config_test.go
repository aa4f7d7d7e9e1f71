package common

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Extraction.LeaseTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Extraction.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Extraction.ClaimInterval)
	assert.Equal(t, 3, cfg.Suggest.MaxResults)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: postgres
  dsn: postgres://localhost/libriscan
extraction:
  workers: 7
  lease_timeout: 2m
suggest:
  max_results: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("LIBRISCAN_EXTRACTION_WORKERS", "9")
	t.Setenv("TESSDATA_PREFIX", "/usr/share/tessdata")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/libriscan", cfg.Database.DSN)
	assert.Equal(t, 9, cfg.Extraction.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Extraction.LeaseTimeout)
	assert.Equal(t, 5, cfg.Suggest.MaxResults)
	assert.Equal(t, "/usr/share/tessdata", cfg.Extraction.TessdataDir)
}

func TestLoadConfig_ResolvesAWSKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", cfg.Extraction.AWSAccessKeyID)
	assert.Equal(t, "secret", cfg.Extraction.AWSSecretAccessKey)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Extraction.Workers, cfg.Extraction.Workers)
	assert.Equal(t, DefaultConfig().Server.GRPCAddr, cfg.Server.GRPCAddr)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"no workers", func(c *Config) { c.Extraction.Workers = 0 }},
		{"no lease timeout", func(c *Config) { c.Extraction.LeaseTimeout = 0 }},
		{"no results", func(c *Config) { c.Suggest.MaxResults = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, level := NewLeveledLogger(&buf, LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "page", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	level.Set(ParseLevel("debug"))
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
