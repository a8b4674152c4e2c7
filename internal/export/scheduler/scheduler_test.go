package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/notecore/internal/export"
)

// fakeExporter writes an empty file per call with an increasing timestamp.
type fakeExporter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExporter) ExportFile(ctx context.Context, dir, path, password string) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	at := time.Date(2026, 1, 1, 0, 0, f.calls, 0, time.UTC)
	p := filepath.Join(dir, export.FileName(at, password != ""))
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		return nil, err
	}
	return &export.Result{Path: p, SizeBytes: 1, Manifest: &export.Manifest{}}, nil
}

func (f *fakeExporter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnce_retention(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), nil, 0o600))

	exp := &fakeExporter{}
	s := New(exp, Config{Dir: dir, Retention: 2})
	var last *export.Result
	for i := 0; i < 4; i++ {
		var err error
		last, err = s.RunOnce(context.Background())
		require.NoError(t, err)
	}

	archives, err := ListArchives(dir)
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, last.Path, archives[1].Path, "newest archives are kept")
	assert.Equal(t, filepath.Join(dir, export.FileName(time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC), false)), archives[0].Path)

	_, err = os.Stat(filepath.Join(dir, "unrelated.txt"))
	assert.NoError(t, err, "other files are left alone")
}

func TestRunOnce_keepAll(t *testing.T) {
	dir := t.TempDir()
	s := New(&fakeExporter{}, Config{Dir: dir, Retention: -1})
	for i := 0; i < 3; i++ {
		_, err := s.RunOnce(context.Background())
		require.NoError(t, err)
	}
	archives, err := ListArchives(dir)
	require.NoError(t, err)
	assert.Len(t, archives, 3)
}

func TestRunOnce_error(t *testing.T) {
	s := New(&fakeExporter{err: errors.New("disk full")}, Config{Dir: t.TempDir()})
	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestListArchives_missingDir(t *testing.T) {
	archives, err := ListArchives(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestStartStop(t *testing.T) {
	exp := &fakeExporter{}
	s := New(exp, Config{Dir: t.TempDir(), Interval: 10 * time.Millisecond})

	s.Start(context.Background())
	s.Start(context.Background()) // already running
	assert.Eventually(t, func() bool { return exp.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	n := exp.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, exp.Calls(), "no backups after Stop")
}

func TestStart_disabled(t *testing.T) {
	exp := &fakeExporter{}
	s := New(exp, Config{Dir: t.TempDir()})
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	assert.Zero(t, exp.Calls())
}

func ExampleListArchives() {
	dir, _ := os.MkdirTemp("", "backups")
	defer os.RemoveAll(dir)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_ = os.WriteFile(filepath.Join(dir, export.FileName(at, true)), nil, 0o600)

	archives, _ := ListArchives(dir)
	for _, a := range archives {
		fmt.Println(filepath.Base(a.Path))
	}
	// Output: notecore_20260501_120000.tar.gz.enc
}
