package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultDownloadTimeout = 5 * time.Minute

// DownloadConfig controls the HTTP collector.
type DownloadConfig struct {
	UserAgent string
	// Timeout bounds the whole request including the body.
	Timeout time.Duration
	// MaxBodySize caps the response body; zero means unlimited.
	MaxBodySize int
	// Limiter, when set, is waited on before each request.
	Limiter HostLimiter
}

// HostLimiter paces requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Downloader fetches single URLs with colly and meters the body as it
// streams in.
type Downloader struct {
	cfg       DownloadConfig
	transport http.RoundTripper
}

// NewDownloader builds a Downloader with a pooled HTTP transport.
func NewDownloader(cfg DownloadConfig) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDownloadTimeout
	}
	return &Downloader{cfg: cfg, transport: newHTTPTransport()}
}

// Download GETs rawURL and writes the body to dst. The meter is started
// when response headers arrive, sized by Content-Length when present.
func (d *Downloader) Download(ctx context.Context, rawURL string, dst io.Writer, m Meter) (int64, error) {
	m = orNop(m)
	name := basename(rawURL)
	if d.cfg.Limiter != nil {
		if err := d.cfg.Limiter.Wait(ctx, rawURL); err != nil {
			return 0, fmt.Errorf("download %s: %w", name, err)
		}
	}

	collector := colly.NewCollector(colly.MaxBodySize(d.cfg.MaxBodySize))
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.SetRequestTimeout(d.cfg.Timeout)
	collector.WithTransport(&meteredTransport{ctx: ctx, base: d.transport, meter: m, name: name})

	var (
		written  int64
		writeErr error
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		n, err := dst.Write(r.Body)
		written = int64(n)
		writeErr = err
		if err == nil {
			m.End(written)
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("download %s canceled: %w", name, ctx.Err())
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return 0, fmt.Errorf("download %s: %w", name, err)
		}
		if writeErr != nil {
			return written, fmt.Errorf("write %s: %w", name, writeErr)
		}
		return written, nil
	}
}

// DownloadFile downloads rawURL into destPath, removing it on failure.
func (d *Downloader) DownloadFile(ctx context.Context, rawURL, destPath string, m Meter) (int64, error) {
	// #nosec G304 -- the caller chooses the destination.
	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}
	n, err := d.Download(ctx, rawURL, f, m)
	err = errors.Join(err, f.Close())
	if err != nil {
		_ = os.Remove(destPath)
		return n, err
	}
	return n, nil
}

// meteredTransport starts the meter on a successful response and wraps the
// body so every read advances it.
type meteredTransport struct {
	ctx   context.Context
	base  http.RoundTripper
	meter Meter
	name  string
}

func (t *meteredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}
	t.meter.Start(t.name, "", resp.ContentLength)
	resp.Body = &meteredBody{ReadCloser: resp.Body, reader: meteredReader{ctx: t.ctx, r: resp.Body, meter: t.meter}}
	return resp, nil
}

type meteredBody struct {
	io.ReadCloser
	reader meteredReader
}

func (b *meteredBody) Read(p []byte) (int, error) {
	return b.reader.Read(p)
}

func basename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return u.Host
	}
	return name
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
