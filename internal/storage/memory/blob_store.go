package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JakeFAU/asyncjob/internal/storage"
)

// Object is a stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps uploaded objects in memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject copies r into memory, reporting progress as it reads.
func (s *BlobStore) PutObject(
	ctx context.Context,
	path, contentType string,
	r io.Reader,
	progress storage.ProgressFunc,
) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	var buf bytes.Buffer
	w := &storage.ProgressWriter{W: &buf, Progress: progress}
	if _, err := io.Copy(w, r); err != nil {
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("copy object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{ContentType: contentType, Data: buf.Bytes()}
	return "memory://" + path, nil
}

// Get returns a copy of the object stored at path.
func (s *BlobStore) Get(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}
