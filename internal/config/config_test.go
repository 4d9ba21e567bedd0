package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Shopify/ejson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWhenNothingConfigured(t *testing.T) {
	cfg, _, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}, zerolog.Nop())
	require.NoError(t, err)

	defaults := Defaults()
	assert.Equal(t, defaults.Connector.Port, cfg.Connector.Port)
	assert.Equal(t, defaults.API.Jobs, cfg.API.Jobs)
	assert.Equal(t, defaults.API.Suggest.Model, cfg.API.Suggest.Model)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
api:
  port: "9090"
  connectorUrl: https://from-yaml.trycloudflare.com
  archive:
    bucket: exports-bucket
connector:
  port: 6001
`)
	t.Setenv("CONNECTOR_URL", "https://from-env.trycloudflare.com")

	cfg, _, err := Load(Options{ConfigFile: path}, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.API.Port)
	assert.Equal(t, "https://from-env.trycloudflare.com", cfg.API.ConnectorURL)
	assert.Equal(t, "exports-bucket", cfg.API.Archive.Bucket)
	assert.Equal(t, "exports", cfg.API.Archive.Prefix)
	assert.Equal(t, 6001, cfg.Connector.Port)
	assert.Equal(t, "127.0.0.1", cfg.Connector.Host)
}

func TestLoad_InlineConfigEnv(t *testing.T) {
	t.Setenv(ConfigEnvVar, "api:\n  logLevel: debug\n")

	cfg, _, err := Load(Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.API.LogLevel)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "api: [")

	_, _, err := Load(Options{ConfigFile: path}, zerolog.Nop())
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", "CONNECTOR_TOKEN=dotenv-token\n")
	t.Setenv("CONNECTOR_TOKEN", "")
	require.NoError(t, os.Unsetenv("CONNECTOR_TOKEN"))

	_, secrets, err := Load(Options{DotEnvFile: path}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", secrets.ConnectorToken)
}

func TestLoad_EjsonSecretsMergedUnderEnv(t *testing.T) {
	pub, priv, err := ejson.GenerateKeypair()
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "secrets.ejson", `{
  "_public_key": "`+pub+`",
  "connectorToken": "ejson-token",
  "geminiApiKey": "ejson-gemini"
}`)
	_, err = ejson.EncryptFileInPlace(path)
	require.NoError(t, err)

	keyFile := writeFile(t, dir, "key", priv+"\n")
	t.Setenv(EJSONKeyFileEnvVar, keyFile)
	t.Setenv("GEMINI_API_KEY", "env-gemini")

	_, secrets, err := Load(Options{SecretsFile: path, EJSONKeyDir: dir}, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "ejson-token", secrets.ConnectorToken)
	assert.Equal(t, "env-gemini", secrets.GeminiAPIKey)
}

func TestBigQueryConfig_Enabled(t *testing.T) {
	assert.False(t, BigQueryConfig{}.Enabled())
	assert.True(t, BigQueryConfig{ProjectID: "p", Dataset: "d"}.Enabled())
}

func TestLoad_ProbeSchedule(t *testing.T) {
	dir := t.TempDir()

	cfg, _, err := Load(Options{ConfigFile: writeFile(t, dir, "default.yaml", "api:\n  probeSchedule: \"\"\n")}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "@every 1m", cfg.API.ProbeSchedule)
	assert.True(t, cfg.API.ProbeEnabled())

	cfg, _, err = Load(Options{ConfigFile: writeFile(t, dir, "off.yaml", "api:\n  probeSchedule: \"off\"\n")}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ProbeOff, cfg.API.ProbeSchedule)
	assert.False(t, cfg.API.ProbeEnabled())
}
