package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file:./correlations.db", cfg.Database.URL)
	assert.Equal(t, "general", cfg.Correlation.Workflow)
	assert.InDelta(t, 0.8, cfg.Correlation.Confidence, 1e-9)
	assert.Equal(t, "correlation_engine", cfg.Correlation.SourceTool)
	assert.Equal(t, "maltego_import.xml", cfg.Output.MaltegoFile)
	assert.Equal(t, "correlation_report.txt", cfg.Output.ReportFile)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "recon-linker", cfg.Logger.ServiceName)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: file:/tmp/case.db
correlation:
  workflow: domain
  confidence: 0.6
logger:
  level: debug
  format: json
`), 0o600))

	t.Setenv("RECON_LINKER_CORRELATION_SOURCE_TOOL", "nightly_run")
	t.Setenv("LIBSQL_AUTH_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/case.db", cfg.Database.URL)
	assert.Equal(t, "secret", cfg.Database.AuthToken)
	assert.Equal(t, "domain", cfg.Correlation.Workflow)
	assert.InDelta(t, 0.6, cfg.Correlation.Confidence, 1e-9)
	assert.Equal(t, "nightly_run", cfg.Correlation.SourceTool)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:    DatabaseConfig{URL: "file:x.db"},
			Correlation: CorrelationConfig{Workflow: "general", Confidence: 0.8},
			Server:      ServerConfig{Transport: "stdio"},
		}
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Correlation.Confidence = 1.2
	assert.Error(t, c.Validate())

	c = base()
	c.Correlation.Workflow = "fuzzy"
	assert.Error(t, c.Validate())

	c = base()
	c.Server.Transport = "grpc"
	assert.Error(t, c.Validate())

	c = base()
	c.Database.URL = ""
	c.Database.ProjectsDir = "/srv/cases"
	assert.NoError(t, c.Validate())
}
