// Package transfer moves bytes while driving a progress meter. The
// operations here are the jobs the asyncjob CLI runs: local copies, HTTP
// downloads, and uploads to an object store.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Meter is the progress sink a transfer drives. *asyncjob.Meter satisfies it.
type Meter interface {
	Start(basename, text string, size int64)
	Update(amountRead int64)
	End(amountRead int64)
}

type nopMeter struct{}

func (nopMeter) Start(string, string, int64) {}
func (nopMeter) Update(int64)                {}
func (nopMeter) End(int64)                   {}

func orNop(m Meter) Meter {
	if m == nil {
		return nopMeter{}
	}
	return m
}

// Copy copies src to dst, reporting each read to m. size <= 0 means the
// length is unknown.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, size int64, name string, m Meter) (int64, error) {
	m = orNop(m)
	m.Start(name, "", size)
	r := &meteredReader{ctx: ctx, r: src, meter: m}
	n, err := io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", name, err)
	}
	m.End(n)
	return n, nil
}

// CopyFile copies the file at srcPath to dstPath. A partial destination is
// removed on failure.
func CopyFile(ctx context.Context, srcPath, dstPath string, m Meter) (int64, error) {
	// #nosec G304 -- the caller chooses which file to copy.
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close() //nolint:errcheck

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	// #nosec G304 -- the caller chooses the destination.
	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}
	n, err := Copy(ctx, dst, src, info.Size(), filepath.Base(srcPath), m)
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close destination: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return n, err
	}
	return n, nil
}

// meteredReader reports the running total after every read and stops once
// ctx is done.
type meteredReader struct {
	ctx   context.Context
	r     io.Reader
	meter Meter
	read  int64
}

func (m *meteredReader) Read(p []byte) (int, error) {
	if err := m.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := m.r.Read(p)
	if n > 0 {
		m.read += int64(n)
		m.meter.Update(m.read)
	}
	return n, err
}
