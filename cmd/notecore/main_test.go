package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/notecore/internal/config"
	"github.com/kimhsiao/notecore/internal/models"
)

// setupEnv points notecore at a temporary data directory with one vault adapter.
func setupEnv(t *testing.T) (vaultDir string) {
	t.Helper()
	dir := t.TempDir()
	vaultDir = filepath.Join(dir, "vault")

	adapters := filepath.Join(dir, "adapters.yaml")
	require.NoError(t, os.WriteFile(adapters, []byte(`adapters:
  - name: scratch
    type: memory
  - name: vault
    type: vault
    path: `+vaultDir+`
`), 0o600))

	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvDBPath, "")
	t.Setenv(config.EnvAdaptersFile, adapters)
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvPeerToken, "")
	return vaultDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "notecore %s", strings.Join(args, " "))
	return out
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "notecore "+Version+"\n", mustRun(t, "version"))
}

func TestNoteCommands(t *testing.T) {
	vaultDir := setupEnv(t)

	var cats []*models.Category
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "category", "list")), &cats))
	require.Len(t, cats, 4, "default categories are seeded")
	work := cats[0].ID

	id := strings.TrimSpace(mustRun(t, "note", "add", "--title", "Plan", "--content", "step one", "--category", work))
	require.NotEmpty(t, id)

	// Propagated to the vault.
	_, err := os.Stat(filepath.Join(vaultDir, "notes", id+".md"))
	require.NoError(t, err)

	var note models.Note
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "note", "show", id)), &note))
	assert.Equal(t, "Plan", note.Title)
	assert.Equal(t, "step one", note.Content)
	assert.Equal(t, work, note.PrimaryCategoryID)

	mustRun(t, "note", "edit", id, "--format", "code")
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "note", "show", id)), &note))
	assert.Equal(t, models.FormatCode, note.Format)
	assert.Equal(t, "Plan", note.Title)

	out := mustRun(t, "note", "list")
	assert.Contains(t, out, "Plan")
	assert.Contains(t, out, cats[0].Name)

	var notes []*models.Note
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "note", "list", "--category", "missing")), &notes))
	assert.Empty(t, notes)

	_, err = run(t, "note", "add", "--format", "pdf")
	assert.Error(t, err)

	mustRun(t, "note", "rm", id)
	_, err = run(t, "note", "show", id)
	assert.Error(t, err)
	_, err = os.Stat(filepath.Join(vaultDir, "notes", id+".md"))
	assert.True(t, os.IsNotExist(err))
}

func TestCategoryCommands(t *testing.T) {
	setupEnv(t)

	id := strings.TrimSpace(mustRun(t, "category", "add", "Reading", "--color", "#abcdef"))
	mustRun(t, "category", "edit", id, "--name", "Books")

	out := mustRun(t, "category", "list")
	assert.Contains(t, out, "Books")
	assert.NotContains(t, out, "Reading")

	mustRun(t, "category", "rm", id)
	assert.NotContains(t, mustRun(t, "category", "list"), "Books")

	_, err := run(t, "category", "edit", "nope", "--name", "x")
	assert.Error(t, err)
}

func TestSyncPull_handWrittenVaultFile(t *testing.T) {
	vaultDir := setupEnv(t)
	mustRun(t, "category", "list") // creates the vault

	require.NoError(t, os.WriteFile(filepath.Join(vaultDir, "notes", "ideas.md"), []byte("written by hand"), 0o644))

	out := mustRun(t, "sync", "pull")
	assert.Contains(t, out, "notes +1")

	var note models.Note
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "note", "show", "ideas")), &note))
	assert.Equal(t, "written by hand", note.Content)

	// Pulling again changes nothing.
	assert.Contains(t, mustRun(t, "sync", "pull"), "applied 0")

	status := mustRun(t, "sync", "status")
	assert.Contains(t, status, "vault")
	assert.Contains(t, status, "0 pending")

	mustRun(t, "sync", "outbox")
	mustRun(t, "sync", "conflicts")
	mustRun(t, "sync", "retry")
	mustRun(t, "sync", "push")
}

func TestObjectStoreConfig(t *testing.T) {
	off := false
	tests := []struct {
		name     string
		in       config.ObjectStoreConfig
		endpoint string
		region   string
		path     bool
		wantErr  bool
	}{
		{name: "aws", in: config.ObjectStoreConfig{Provider: "aws", Region: "eu-west-1"}, endpoint: "https://s3.eu-west-1.amazonaws.com", region: "eu-west-1"},
		{name: "r2", in: config.ObjectStoreConfig{Provider: "r2", AccountID: "acc"}, endpoint: "https://acc.r2.cloudflarestorage.com", region: "auto"},
		{name: "minio", in: config.ObjectStoreConfig{Provider: "minio", Endpoint: "localhost:9000", UseSSL: &off}, endpoint: "http://localhost:9000", region: "us-east-1", path: true},
		{name: "generic", in: config.ObjectStoreConfig{Provider: "s3", Endpoint: "store.example.com", Region: "eu"}, endpoint: "https://store.example.com", region: "eu", path: true},
		{name: "unknown", in: config.ObjectStoreConfig{Provider: "gcs"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := objectStoreConfig(&tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, got.Endpoint)
			assert.Equal(t, tt.region, got.Region)
			assert.Equal(t, tt.path, got.ForcePathStyle)
		})
	}
}

func TestBackupCommands(t *testing.T) {
	setupEnv(t)
	t.Setenv(config.EnvBackupDir, "")
	t.Setenv(config.EnvBackupPassword, "")

	id := strings.TrimSpace(mustRun(t, "note", "add", "--title", "Keep me", "--content", "v1"))
	out := mustRun(t, "backup", "create", "--password", "longenough")
	assert.Contains(t, out, ".tar.gz.enc")
	assert.Contains(t, out, "1 notes")

	var archives []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "backup", "list")), &archives))
	require.Len(t, archives, 1)
	path := archives[0]["Path"].(string)

	mustRun(t, "note", "rm", id)
	_, err := run(t, "backup", "restore", path)
	assert.Error(t, err, "sealed archives need the password")

	out = mustRun(t, "backup", "restore", path, "--password", "longenough")
	assert.Contains(t, out, "notes +1")

	var note models.Note
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "note", "show", id)), &note))
	assert.Equal(t, "v1", note.Content)
}
