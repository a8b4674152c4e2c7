package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDataDir, EnvDBPath, EnvLogLevel, EnvListenAddr, EnvSyncInterval,
		EnvQueueInterval, EnvAllowedOrigins, EnvAdaptersFile, EnvPeerToken,
		EnvBackupDir, EnvBackupInterval, EnvBackupKeep, EnvBackupPassword} {
		t.Setenv(k, "")
	}
}

// TestDefault verifies built-in defaults.
func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.Equal(t, time.Minute, cfg.QueueInterval)
	assert.Equal(t, filepath.Join(cfg.DataDir, "notes.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "backups"), cfg.BackupDir())
	assert.Equal(t, 7, cfg.Backup.Keep)
	assert.Zero(t, cfg.Backup.Interval)

	cfg.DBPath = "/tmp/x.db"
	assert.Equal(t, "/tmp/x.db", cfg.DatabasePath())
}

// TestLoad_env verifies environment variables override defaults.
func TestLoad_env(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvSyncInterval, "30s")
	t.Setenv(EnvQueueInterval, "0s")
	t.Setenv(EnvAllowedOrigins, "localhost:3000, app.example.com ,")
	t.Setenv(EnvPeerToken, "tok")
	t.Setenv(EnvBackupInterval, "24h")
	t.Setenv(EnvBackupKeep, "3")
	t.Setenv(EnvBackupDir, filepath.Join(dir, "bk"))

	_, err := Load(filepath.Join(dir, "missing.env"))
	require.Error(t, err, "an explicit env file must exist")
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))

	cfg, err := Load(writeFile(t, dir, "empty.env", ""))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, time.Duration(0), cfg.QueueInterval)
	assert.Equal(t, []string{"localhost:3000", "app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "tok", cfg.PeerToken)
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval)
	assert.Equal(t, 3, cfg.Backup.Keep)
	assert.Equal(t, filepath.Join(dir, "bk"), cfg.BackupDir())
	assert.Empty(t, cfg.Adapters)
}

// TestLoad_envFile verifies .env values apply without overriding the process environment.
func TestLoad_envFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	os.Unsetenv(EnvListenAddr)
	os.Unsetenv(EnvLogLevel)
	t.Setenv(EnvDataDir, dir)
	t.Cleanup(func() {
		os.Unsetenv(EnvListenAddr)
		os.Unsetenv(EnvLogLevel)
	})

	envFile := writeFile(t, dir, "test.env", "NOTECORE_LISTEN_ADDR=0.0.0.0:9999\nNOTECORE_DATA_DIR=/ignored\nNOTECORE_LOG_LEVEL=warn\n")
	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, dir, cfg.DataDir)
}

// TestLoad_badDuration verifies invalid durations are rejected.
func TestLoad_badDuration(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvSyncInterval, "soon")

	_, err := Load(writeFile(t, dir, "e.env", ""))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

// TestLoad_badBackupKeep verifies a negative retention count is rejected.
func TestLoad_badBackupKeep(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvBackupKeep, "-1")

	_, err := Load(writeFile(t, dir, "e.env", ""))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

// TestLoad_adaptersFile verifies the adapters file is read from the data dir with env expansion.
func TestLoad_adaptersFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv("TEST_BUCKET_SECRET", "s3cr3t")

	writeFile(t, dir, "adapters.yaml", `
adapters:
  - name: local-vault
    type: vault
    path: /notes
    watch: true
  - name: backup
    type: objectstore
    objectstore:
      provider: minio
      endpoint: localhost:9000
      bucket: notes
      access_key: minio
      secret_key: ${TEST_BUCKET_SECRET}
  - name: peer
    type: http
    url: http://10.0.0.2:8090
`)

	cfg, err := Load(writeFile(t, dir, "e.env", ""))
	require.NoError(t, err)
	require.Len(t, cfg.Adapters, 3)
	assert.Equal(t, filepath.Join(dir, "adapters.yaml"), cfg.AdaptersFile)

	assert.Equal(t, AdapterVault, cfg.Adapters[0].Type)
	assert.True(t, cfg.Adapters[0].Watch)
	require.NotNil(t, cfg.Adapters[1].ObjectStore)
	assert.Equal(t, "s3cr3t", cfg.Adapters[1].ObjectStore.SecretKey)
	assert.Equal(t, "http://10.0.0.2:8090", cfg.Adapters[2].URL)
}

// TestLoadAdapters_malformed verifies YAML errors are reported as CONFIG_INVALID.
func TestLoadAdapters_malformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.yaml", "adapters: [::")
	_, err := LoadAdapters(path)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))

	_, err = LoadAdapters(filepath.Join(t.TempDir(), "none.yaml"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

// TestAdapterConfig_Validate verifies per-type required fields.
func TestAdapterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AdapterConfig
		wantErr bool
	}{
		{"memory", AdapterConfig{Name: "m", Type: AdapterMemory}, false},
		{"no name", AdapterConfig{Type: AdapterMemory}, true},
		{"unknown type", AdapterConfig{Name: "x", Type: "ftp"}, true},
		{"vault without path", AdapterConfig{Name: "v", Type: AdapterVault}, true},
		{"postgres", AdapterConfig{Name: "p", Type: AdapterPostgres, DSN: "postgres://x"}, false},
		{"postgres without dsn", AdapterConfig{Name: "p", Type: AdapterPostgres}, true},
		{"http without url", AdapterConfig{Name: "h", Type: AdapterHTTP}, true},
		{"objectstore without settings", AdapterConfig{Name: "o", Type: AdapterObjectStore}, true},
		{"aws", AdapterConfig{Name: "o", Type: AdapterObjectStore, ObjectStore: &ObjectStoreConfig{
			Provider: "aws", Bucket: "b", AccessKey: "a", SecretKey: "s"}}, false},
		{"r2 without account", AdapterConfig{Name: "o", Type: AdapterObjectStore, ObjectStore: &ObjectStoreConfig{
			Provider: "r2", Bucket: "b", AccessKey: "a", SecretKey: "s"}}, true},
		{"minio without endpoint", AdapterConfig{Name: "o", Type: AdapterObjectStore, ObjectStore: &ObjectStoreConfig{
			Provider: "minio", Bucket: "b", AccessKey: "a", SecretKey: "s"}}, true},
		{"unknown provider", AdapterConfig{Name: "o", Type: AdapterObjectStore, ObjectStore: &ObjectStoreConfig{
			Provider: "gcs", Bucket: "b", AccessKey: "a", SecretKey: "s"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestValidate_duplicateNames verifies adapter names must be unique.
func TestValidate_duplicateNames(t *testing.T) {
	cfg := Default()
	cfg.Adapters = []AdapterConfig{
		{Name: "a", Type: AdapterMemory},
		{Name: "a", Type: AdapterMemory},
	}
	assert.True(t, apperrors.Is(cfg.Validate(), apperrors.ErrConfigInvalid))
}
