package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestLoad_DefaultsAndValidation(t *testing.T) {
	t.Setenv("ENC_KEY", testEncKey)

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file:./phalerum.db", cfg.Database.DSN)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 80*time.Millisecond, cfg.Auth.FailureDelay)
	assert.Equal(t, 2, cfg.Compiler.Workers)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddress())
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	t.Setenv("ENC_KEY", "")

	_, err := Load("", "")
	assert.ErrorContains(t, err, "ENC_KEY")
}

func TestLoad_EncryptionKeyLength(t *testing.T) {
	t.Setenv("ENC_KEY", "abcd")

	_, err := Load("", "")
	assert.ErrorContains(t, err, "64 hex characters")
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("ENC_KEY", testEncKey)
	t.Setenv("PHALERUM_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("ENC_KEY", testEncKey)

	dir := t.TempDir()
	file := filepath.Join(dir, "phalerum.yaml")
	content := []byte("server:\n  port: 3000\nauth:\n  session_ttl: 1h\n")
	require.NoError(t, os.WriteFile(file, content, 0o600))

	cfg, err := Load(file, "")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
}

func TestLoad_EnvironmentFile(t *testing.T) {
	t.Setenv("ENC_KEY", testEncKey)

	dir := t.TempDir()
	file := filepath.Join(dir, "phalerum.env")
	content := []byte("# comment\nPHALERUM_HOST=127.0.0.1\nBASE_URL=\"https://c2.example.org\"\n")
	require.NoError(t, os.WriteFile(file, content, 0o600))

	cfg, err := Load("", file)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "https://c2.example.org", cfg.Server.BaseURL)
}

func TestValidate_PortRange(t *testing.T) {
	t.Setenv("ENC_KEY", testEncKey)
	t.Setenv("PHALERUM_PORT", "70000")

	_, err := Load("", "")
	assert.ErrorContains(t, err, "port")
}
