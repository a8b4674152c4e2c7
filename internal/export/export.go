// Package export writes and restores backup archives of the local notes and
// categories. An archive is a gzip-compressed tar holding manifest.json and
// data.json, optionally sealed with a password. Restores merge through the
// last-write-wins reconciliation, so restoring an old archive never rolls
// back newer local edits.
package export

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/export/crypto"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
)

const (
	// FormatVersion is written to every manifest.
	FormatVersion = "1"
	// Ext is the file extension of unsealed archives.
	Ext = ".tar.gz"
	// SealedExt is the file extension of password-sealed archives.
	SealedExt = ".tar.gz.enc"

	manifestName = "manifest.json"
	dataName     = "data.json"

	// maxEntrySize bounds a single archive member on restore.
	maxEntrySize = 512 << 20
)

// Backend is the slice of the notes service a backup needs.
type Backend interface {
	ListNotes(ctx context.Context, categoryID *string) ([]*models.Note, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
	ApplyRemote(ctx context.Context, source string, notes []*models.Note, cats []*models.Category) (*syncpkg.ReconcileResult, error)
}

// Manifest describes an archive.
type Manifest struct {
	Version       string    `json:"version"`
	ExportedAt    time.Time `json:"exportedAt"`
	NoteCount     int       `json:"noteCount"`
	CategoryCount int       `json:"categoryCount"`
	Checksum      string    `json:"checksum"`
	Encrypted     bool      `json:"encrypted"`
}

// Data is the payload of data.json.
type Data struct {
	Notes      []*models.Note     `json:"notes"`
	Categories []*models.Category `json:"categories"`
}

// Result is returned by ExportFile.
type Result struct {
	Path      string
	SizeBytes int64
	Manifest  *Manifest
	Duration  time.Duration
}

// ImportResult is returned by Import.
type ImportResult struct {
	Manifest *Manifest
	*syncpkg.ReconcileResult
	Duration time.Duration
}

// Service creates and restores backups.
type Service struct {
	backend Backend
	now     func() time.Time
}

// NewService creates a Service over backend.
func NewService(backend Backend) *Service {
	return &Service{backend: backend, now: time.Now}
}

// Export writes an archive of every note and category to w. A non-empty
// password seals the archive.
func (s *Service) Export(ctx context.Context, w io.Writer, password string) (*Manifest, error) {
	notes, err := s.backend.ListNotes(ctx, nil)
	if err != nil {
		return nil, err
	}
	cats, err := s.backend.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	if cats == nil {
		cats = []*models.Category{}
	}

	data, err := json.MarshalIndent(&Data{Notes: notes, Categories: cats}, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode backup data", err)
	}
	sum := sha256.Sum256(data)
	manifest := &Manifest{
		Version:       FormatVersion,
		ExportedAt:    s.now().UTC(),
		NoteCount:     len(notes),
		CategoryCount: len(cats),
		Checksum:      hex.EncodeToString(sum[:]),
		Encrypted:     password != "",
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode manifest", err)
	}

	var archive bytes.Buffer
	if err := writeArchive(&archive, manifest.ExportedAt, map[string][]byte{
		manifestName: manifestData,
		dataName:     data,
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "write archive", err)
	}

	out := archive.Bytes()
	if password != "" {
		if out, err = crypto.Seal(out, password); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "seal archive", err)
		}
	}
	if _, err := w.Write(out); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "write backup", err)
	}
	return manifest, nil
}

// ExportFile writes an archive to path, replacing it atomically. An empty
// path names a timestamped file in dir.
func (s *Service) ExportFile(ctx context.Context, dir, path, password string) (*Result, error) {
	start := s.now()
	if path == "" {
		path = filepath.Join(dir, FileName(start, password != ""))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "create backup directory", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "create backup file", err)
	}
	manifest, err := s.Export(ctx, f, password)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = apperrors.Wrap(apperrors.ErrStorageFailure, "close backup file", cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "rename backup file", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "stat backup file", err)
	}
	return &Result{Path: path, SizeBytes: info.Size(), Manifest: manifest, Duration: s.now().Sub(start)}, nil
}

// FileName returns the conventional archive name for a backup taken at t.
func FileName(t time.Time, sealed bool) string {
	ext := Ext
	if sealed {
		ext = SealedExt
	}
	return "notecore_" + t.UTC().Format("20060102_150405") + ext
}

// Import restores the archive read from r. Sealed archives need password.
// source labels the records in the conflict log.
func (s *Service) Import(ctx context.Context, r io.Reader, password, source string) (*ImportResult, error) {
	start := s.now()
	manifest, data, err := Read(r, password)
	if err != nil {
		return nil, err
	}
	result, err := s.backend.ApplyRemote(ctx, source, data.Notes, data.Categories)
	if err != nil {
		return nil, err
	}
	return &ImportResult{Manifest: manifest, ReconcileResult: result, Duration: s.now().Sub(start)}, nil
}

// ImportFile restores the archive at path.
func (s *Service) ImportFile(ctx context.Context, path, password string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "backup %s not found", path)
		}
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, "open backup", err)
	}
	defer f.Close()
	return s.Import(ctx, f, password, "backup:"+filepath.Base(path))
}

// Read parses and verifies an archive without applying it.
func Read(r io.Reader, password string) (*Manifest, *Data, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 2*maxEntrySize))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrStorageFailure, "read backup", err)
	}
	if crypto.IsSealed(raw) {
		if password == "" {
			return nil, nil, apperrors.New(apperrors.ErrInvalid, "backup is encrypted; a password is required")
		}
		if raw, err = crypto.Open(raw, password); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrInvalid, "open sealed backup", err)
		}
	}

	files, err := readArchive(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInvalid, "read archive", err)
	}
	manifestData, ok := files[manifestName]
	if !ok {
		return nil, nil, apperrors.New(apperrors.ErrInvalid, "archive has no "+manifestName)
	}
	data, ok := files[dataName]
	if !ok {
		return nil, nil, apperrors.New(apperrors.ErrInvalid, "archive has no "+dataName)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInvalid, "parse manifest", err)
	}
	if manifest.Version != FormatVersion {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalid, "unsupported backup version %q", manifest.Version)
	}
	sum := sha256.Sum256(data)
	if manifest.Checksum != hex.EncodeToString(sum[:]) {
		return nil, nil, apperrors.New(apperrors.ErrInvalid, "backup checksum mismatch")
	}

	var payload Data
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInvalid, "parse backup data", err)
	}
	return &manifest, &payload, nil
}

func writeArchive(w io.Writer, modTime time.Time, files map[string][]byte) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)
	// Manifest first so a listing shows it at the top.
	for _, name := range []string{manifestName, dataName} {
		body := files[name]
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o600,
			Size:    int64(len(body)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(body); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}

// readArchive returns the regular files of a gzip tar. Unknown members are
// skipped.
func readArchive(r io.Reader) (map[string][]byte, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	files := make(map[string][]byte, 2)
	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg || (hdr.Name != manifestName && hdr.Name != dataName) {
			continue
		}
		if hdr.Size > maxEntrySize {
			return nil, fmt.Errorf("%s exceeds %d bytes", hdr.Name, maxEntrySize)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		files[hdr.Name] = body
	}
}
