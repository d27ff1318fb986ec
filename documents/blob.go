// Package documents stores the files attached to project stage documents.
package documents

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
	"sync"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("blob not found")

// Blob is stored file content.
type Blob struct {
	Data        []byte
	ContentType string
}

// BlobStore persists document content by key.
type BlobStore interface {
	Put(ctx context.Context, key string, blob Blob) error
	Get(ctx context.Context, key string) (Blob, error)
	Delete(ctx context.Context, key string) error
}

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = unsafeKeyChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-.")
}

// Key builds the blob key of a stage document file.
func Key(projectID, stage, document, fileName string) string {
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(path.Base(fileName), ext)
	name := slug(base)
	if name == "" {
		name = "file"
	}
	if ext = slug(ext); ext != "" {
		name += "." + ext
	}
	return path.Join("projects", slug(projectID), slug(stage), slug(document), name)
}

// MemoryBlobStore keeps blobs in process memory.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryBlobStore creates an empty store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]Blob)}
}

// Put implements BlobStore.
func (m *MemoryBlobStore) Put(_ context.Context, key string, blob Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = Blob{Data: append([]byte(nil), blob.Data...), ContentType: blob.ContentType}
	return nil
}

// Get implements BlobStore.
func (m *MemoryBlobStore) Get(_ context.Context, key string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return Blob{Data: append([]byte(nil), b.Data...), ContentType: b.ContentType}, nil
}

// Delete implements BlobStore. Deleting a missing key is not an error.
func (m *MemoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}
