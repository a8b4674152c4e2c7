// Package httppeer provides a sync adapter that talks to another notecore
// server's replication endpoints under /api/sync.
package httppeer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/models"
	syncpkg "github.com/kimhsiao/notecore/internal/sync"
)

// Replication paths served by the peer.
const (
	NotesPath      = "/api/sync/notes"
	CategoriesPath = "/api/sync/categories"
)

// Adapter replicates records to a peer over HTTP.
type Adapter struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time interface check.
var _ syncpkg.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(a *Adapter) { a.token = token }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// New creates an Adapter for the peer at baseURL, e.g. http://10.0.0.2:8090.
func New(name, baseURL string, opts ...Option) (*Adapter, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Newf(apperrors.ErrConfigInvalid, "%s: invalid peer url %q", name, baseURL)
	}
	a := &Adapter{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name implements sync.Adapter.
func (a *Adapter) Name() string { return a.name }

// Capabilities implements sync.Adapter.
func (a *Adapter) Capabilities() syncpkg.Capabilities { return syncpkg.AllCapabilities() }

// UpsertNote implements sync.Adapter.
func (a *Adapter) UpsertNote(ctx context.Context, note *models.Note) error {
	return a.do(ctx, "upsert note", http.MethodPut, NotesPath+"/"+url.PathEscape(note.ID), note, nil)
}

// DeleteNote implements sync.Adapter.
func (a *Adapter) DeleteNote(ctx context.Context, id string) error {
	return a.do(ctx, "delete note", http.MethodDelete, NotesPath+"/"+url.PathEscape(id), nil, nil)
}

// PullAllNotes implements sync.Adapter.
func (a *Adapter) PullAllNotes(ctx context.Context) ([]*models.Note, error) {
	var notes []*models.Note
	if err := a.do(ctx, "pull notes", http.MethodGet, NotesPath, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// UpsertCategory implements sync.Adapter.
func (a *Adapter) UpsertCategory(ctx context.Context, category *models.Category) error {
	return a.do(ctx, "upsert category", http.MethodPut, CategoriesPath+"/"+url.PathEscape(category.ID), category, nil)
}

// DeleteCategory implements sync.Adapter.
func (a *Adapter) DeleteCategory(ctx context.Context, id string) error {
	return a.do(ctx, "delete category", http.MethodDelete, CategoriesPath+"/"+url.PathEscape(id), nil, nil)
}

// PullAllCategories implements sync.Adapter.
func (a *Adapter) PullAllCategories(ctx context.Context) ([]*models.Category, error) {
	var cats []*models.Category
	if err := a.do(ctx, "pull categories", http.MethodGet, CategoriesPath, nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

func (a *Adapter) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return a.fail(op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return a.fail(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return a.fail(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return a.fail(op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return a.fail(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (a *Adapter) fail(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrAdapterFailure, fmt.Sprintf("%s: %s", a.name, op), err)
}
