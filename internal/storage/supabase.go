package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
)

// SupabaseStore stores artifacts in a public Supabase Storage bucket.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

func NewSupabaseStore(cfg config.StorageConfig) (*SupabaseStore, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("supabase storage requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
	}
	endpoint := strings.TrimRight(cfg.SupabaseURL, "/") + "/storage/v1"
	client := storage_go.NewClient(endpoint, cfg.SupabaseKey, map[string]string{
		"apikey": cfg.SupabaseKey,
	})

	s := &SupabaseStore{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SupabaseStore) ensureBucket() error {
	if _, err := s.client.GetBucket(s.bucket); err == nil {
		return nil
	}
	if _, err := s.client.CreateBucket(s.bucket, storage_go.BucketOptions{Public: true}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload ignores ctx; the storage-go client has no context support.
func (s *SupabaseStore) Upload(_ context.Context, key string, content []byte, contentType string) error {
	cacheControl := "31536000"
	upsert := false
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(content), storage_go.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *SupabaseStore) URL(_ context.Context, key string) (string, error) {
	resp := s.client.GetPublicUrl(s.bucket, key)
	if resp.SignedURL == "" {
		return "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return resp.SignedURL, nil
}
