// Package storage uploads rendered report artifacts and hands out their URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
)

// ArtifactCacheControl is sent with every upload; report keys are never reused.
const ArtifactCacheControl = "max-age=31536000"

var ErrObjectNotFound = errors.New("object not found")

type ObjectStore interface {
	Upload(ctx context.Context, key string, content []byte, contentType string) error
	// URL returns a link a browser can open without credentials.
	URL(ctx context.Context, key string) (string, error)
}

// New builds the backend selected by cfg.Backend and makes sure its bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinIOStore(ctx, cfg)
	case "supabase":
		return NewSupabaseStore(cfg)
	case "memory":
		return NewMemoryStore("memory://" + cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// MemoryStore keeps objects in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object

	// Err, when set, is returned by Upload.
	Err error
}

type Object struct {
	Content     []byte
	ContentType string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string]Object)}
}

func (m *MemoryStore) Upload(_ context.Context, key string, content []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.objects[key] = Object{Content: append([]byte(nil), content...), ContentType: contentType}
	return nil
}

func (m *MemoryStore) URL(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return m.baseURL + "/" + key, nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys lists stored object keys.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
