package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("https://cdn.test/reports")

	_, err := s.URL(ctx, "missing.html")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, s.Upload(ctx, "u/q/report-1.html", []byte("<html></html>"), "text/html"))
	url, err := s.URL(ctx, "u/q/report-1.html")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/reports/u/q/report-1.html", url)

	obj, ok := s.Get("u/q/report-1.html")
	require.True(t, ok)
	assert.Equal(t, "text/html", obj.ContentType)

	s.Err = errors.New("quota exceeded")
	assert.Error(t, s.Upload(ctx, "x", nil, "text/html"))
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: "memory", Bucket: "reports"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Backend: "supabase"})
	assert.Error(t, err)
}
