// Package storage writes uploaded audio to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// ErrInvalidKey rejects object keys that are empty or escape the bucket.
var ErrInvalidKey = errors.New("storage: invalid object key")

// Storage stores one object per key.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}

// SupabaseStorage uploads to a Supabase Storage bucket.
type SupabaseStorage struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseStorage(url, serviceRoleKey, bucket string) (*SupabaseStorage, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseStorage{client: client, bucket: bucket}, nil
}

func (s *SupabaseStorage) Upload(_ context.Context, key, _ string, body io.Reader) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, key, body); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}

// LocalStorage writes objects under a directory. Used when Supabase is not configured.
type LocalStorage struct {
	Dir string
}

func NewLocalStorage(dir string) *LocalStorage { return &LocalStorage{Dir: dir} }

func (s *LocalStorage) Upload(ctx context.Context, key, _ string, body io.Reader) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, readerWithContext{ctx, body}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	return nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Open returns Supabase storage when credentials are present and local storage otherwise.
func Open(url, serviceRoleKey, bucket, dir string) (Storage, error) {
	if url != "" && serviceRoleKey != "" {
		return NewSupabaseStorage(url, serviceRoleKey, bucket)
	}
	return NewLocalStorage(dir), nil
}
