// Package storage archives enrichment results as JSON blobs.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
)

// BlobStore uploads and downloads opaque blobs
type BlobStore interface {
	// Upload stores data at blobPath and returns a reference to it
	Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error)

	// Download reads back a reference returned by Upload
	Download(ctx context.Context, reference string) ([]byte, error)
}

// ResultPath is where the result of article id processed at t is stored:
// results/<yyyy-mm-dd>/<id>.json, dated in UTC.
func ResultPath(id string, t time.Time) string {
	return path.Join("results", t.UTC().Format("2006-01-02"), id+".json")
}

// Archive writes results to a BlobStore
type Archive struct {
	store  BlobStore
	logger *zap.Logger
	now    func() time.Time
}

// NewArchive creates an archive on store.
func NewArchive(store BlobStore, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{store: store, logger: logger, now: time.Now}
}

// Put stores res and returns the blob reference.
func (a *Archive) Put(ctx context.Context, res *article.Result) (string, error) {
	if res == nil || res.ID == "" {
		return "", fmt.Errorf("result has no id")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode result %s: %w", res.ID, err)
	}

	metadata := map[string]string{
		"article_id": res.ID,
		"status":     "success",
	}
	if res.HasErrors() {
		metadata["status"] = "partial"
	}

	ref, err := a.store.Upload(ctx, ResultPath(res.ID, a.now()), data, metadata)
	if err != nil {
		return "", fmt.Errorf("failed to archive result %s: %w", res.ID, err)
	}

	a.logger.Debug("Archived result",
		zap.String("article_id", res.ID),
		zap.String("reference", ref))
	return ref, nil
}

// Get reads back an archived result.
func (a *Archive) Get(ctx context.Context, reference string) (*article.Result, error) {
	data, err := a.store.Download(ctx, reference)
	if err != nil {
		return nil, err
	}

	var res article.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", reference, err)
	}
	return &res, nil
}

// MemoryStore is a BlobStore kept in memory. References are blob paths.
type MemoryStore struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	metadata map[string]map[string]string
}

var _ BlobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:    make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (m *MemoryStore) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[blobPath] = append([]byte(nil), data...)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.metadata[blobPath] = meta
	return blobPath, nil
}

func (m *MemoryStore) Download(ctx context.Context, reference string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[reference]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", reference)
	}
	return append([]byte(nil), data...), nil
}

// Metadata returns the metadata stored with a blob.
func (m *MemoryStore) Metadata(reference string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[reference]
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
