package storage

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	catalogapp "github.com/shopfront/backend/internal/application/catalog"
)

// MemoryStorage stands in for S3 when object storage is disabled. URLs point
// at BaseURL and nothing is transferred, so every key counts as uploaded
// until it is deleted.
type MemoryStorage struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
	deleted map[string]struct{}
}

var _ catalogapp.ObjectStorageService = (*MemoryStorage)(nil)

// NewMemoryStorage creates a MemoryStorage
func NewMemoryStorage(baseURL string) *MemoryStorage {
	if baseURL == "" {
		baseURL = "http://localhost:8080/static"
	}
	return &MemoryStorage{
		BaseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// GenerateUploadURL returns a fake upload URL
func (s *MemoryStorage) GenerateUploadURL(_ context.Context, storageKey, _ string, expiresIn time.Duration) (string, time.Time, error) {
	return s.url("upload", storageKey, expiresIn)
}

// GenerateDownloadURL returns a fake download URL
func (s *MemoryStorage) GenerateDownloadURL(_ context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	return s.url("download", storageKey, expiresIn)
}

// DeleteObject forgets storageKey
func (s *MemoryStorage) DeleteObject(_ context.Context, storageKey string) error {
	if storageKey == "" {
		return errEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, storageKey)
	s.deleted[storageKey] = struct{}{}
	return nil
}

// ObjectExists is true for any key not deleted
func (s *MemoryStorage) ObjectExists(_ context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, errEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, gone := s.deleted[storageKey]
	return !gone, nil
}

// Upload keeps data in memory
func (s *MemoryStorage) Upload(_ context.Context, storageKey string, data []byte, _ string) error {
	if storageKey == "" {
		return errEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[storageKey] = append([]byte(nil), data...)
	delete(s.deleted, storageKey)
	return nil
}

// Object returns uploaded bytes
func (s *MemoryStorage) Object(storageKey string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[storageKey]
	return data, ok
}

func (s *MemoryStorage) url(action, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, errEmptyKey
	}
	if expiresIn <= 0 {
		expiresIn = defaultPresignExpiry
	}
	expiresAt := time.Now().Add(expiresIn)
	q := url.Values{"expires": {expiresAt.UTC().Format(time.RFC3339)}}
	return s.BaseURL + "/" + action + "/" + url.PathEscape(storageKey) + "?" + q.Encode(), expiresAt, nil
}
