// Package storage holds what the object store backends share. Each backend
// implements PutObject(ctx, path, contentType, r, progress) and reports the
// running byte count through progress as the upload advances.
package storage

import "io"

// ProgressFunc receives the total bytes written so far.
type ProgressFunc func(written int64)

// ProgressWriter forwards writes to W and reports the running total.
type ProgressWriter struct {
	W        io.Writer
	Progress ProgressFunc
	n        int64
}

func (w *ProgressWriter) Write(p []byte) (int, error) {
	n, err := w.W.Write(p)
	if n > 0 {
		w.n += int64(n)
		if w.Progress != nil {
			w.Progress(w.n)
		}
	}
	return n, err
}

// Written returns the bytes written so far.
func (w *ProgressWriter) Written() int64 {
	return w.n
}
