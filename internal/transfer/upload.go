package transfer

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/JakeFAU/asyncjob/internal/storage"
)

// ObjectStore is implemented by the gcs, local and memory blob stores.
type ObjectStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader, progress storage.ProgressFunc) (string, error)
}

// Upload streams src to object in store and returns the object URI.
func Upload(
	ctx context.Context,
	store ObjectStore,
	object string,
	src io.Reader,
	size int64,
	contentType string,
	m Meter,
) (string, error) {
	m = orNop(m)
	m.Start(path.Base(object), "", size)

	var sent atomic.Int64
	uri, err := store.PutObject(ctx, object, contentType, src, func(written int64) {
		sent.Store(written)
		m.Update(written)
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	total := sent.Load()
	if size > total {
		// Some backends only report once the final chunk is acknowledged.
		total = size
	}
	m.End(total)
	return uri, nil
}

// UploadFile uploads the file at filePath. The content type is guessed from
// the extension.
func UploadFile(ctx context.Context, store ObjectStore, filePath, object string, m Meter) (string, error) {
	// #nosec G304 -- the caller chooses which file to upload.
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	if object == "" {
		object = filepath.Base(filePath)
	}
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Upload(ctx, store, object, f, info.Size(), contentType, m)
}
