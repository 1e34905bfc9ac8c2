package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// BlobStore keeps uploads in memory. URLs are BaseURL joined with the key.
type BlobStore struct {
	BaseURL string

	mu    sync.RWMutex
	blobs map[string]blob
}

type blob struct {
	data        []byte
	contentType string
}

func NewBlobStore(baseURL string) *BlobStore {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &BlobStore{BaseURL: strings.TrimRight(baseURL, "/"), blobs: make(map[string]blob)}
}

func (b *BlobStore) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	b.mu.Lock()
	b.blobs[key] = blob{data: data, contentType: contentType}
	b.mu.Unlock()
	return b.BaseURL + "/" + key, nil
}

// Get returns a stored blob and its content type.
func (b *BlobStore) Get(key string) ([]byte, string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stored, ok := b.blobs[key]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(stored.data), stored.contentType, true
}
