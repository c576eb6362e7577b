// SPDX-License-Identifier: MIT

// Package feed acquires the upstream guide: download, gunzip and publish.
package feed

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/anilwee/dialog/internal/epg"
	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/metrics"
	"github.com/anilwee/dialog/internal/platform/httpx"
)

// ErrUpstreamStatus is returned for a non-200 download response.
var ErrUpstreamStatus = errors.New("feed: unexpected upstream status")

// Extract decompresses the gzip file src into dst. dst is replaced
// atomically, so a failed run leaves any previous dst in place.
func Extract(ctx context.Context, src, dst string) (int64, error) {
	// #nosec G304 -- paths are provided by the operator
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", epg.ErrInputNotFound, src)
		}
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("gunzip %s: %w", src, err)
	}
	defer func() { _ = zr.Close() }()

	n, err := writeAtomic(ctx, dst, zr)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", src, err)
	}
	lklog.FromContext(ctx).Info().
		Str(lklog.FieldInput, src).
		Str(lklog.FieldOutput, dst).
		Int64(lklog.FieldBytes, n).
		Msg("feed extracted")
	return n, nil
}

// Fetcher downloads feeds over HTTP.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher returns a Fetcher. headerTimeout bounds the wait for response
// headers; the body itself may stream for as long as ctx allows.
func NewFetcher(headerTimeout time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: httpx.NewStreamingClient(headerTimeout),
		logger: logger.With().Str(lklog.FieldComponent, "feed").Logger(),
	}
}

// NewFetcherWithClient is NewFetcher with a caller-supplied client.
func NewFetcherWithClient(client *http.Client, logger zerolog.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logger.With().Str(lklog.FieldComponent, "feed").Logger()}
}

// Open issues a GET for url and returns the body. The caller closes it.
func (f *Fetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s (HTTP 404)", epg.ErrInputNotFound, url)
		}
		return nil, fmt.Errorf("%w: %s (HTTP %d)", ErrUpstreamStatus, url, resp.StatusCode)
	}
	return resp.Body, nil
}

// Download streams url into dst and returns the number of bytes written.
func (f *Fetcher) Download(ctx context.Context, url, dst string) (int64, error) {
	start := time.Now()
	body, err := f.Open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := writeAtomic(ctx, dst, body)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	metrics.AddDownloadedBytes(n)
	logger := lklog.WithContext(ctx, f.logger)
	logger.Info().
		Str(lklog.FieldURL, url).
		Str(lklog.FieldOutput, dst).
		Int64(lklog.FieldBytes, n).
		Dur("elapsed", time.Since(start)).
		Msg("feed downloaded")
	return n, nil
}

// Publish moves files into dir, creating it when needed. Files already in
// dir are left alone.
func Publish(dir string, files ...string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	out := make([]string, 0, len(files))
	for _, src := range files {
		dst := filepath.Join(dir, filepath.Base(src))
		same, err := samePath(src, dst)
		if err != nil {
			return out, err
		}
		if !same {
			if err := move(src, dst); err != nil {
				return out, fmt.Errorf("publish %s: %w", src, err)
			}
		}
		out = append(out, dst)
	}
	return out, nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

// move renames src to dst, copying when they are on different filesystems.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	// #nosec G304 -- paths are provided by the operator
	in, openErr := os.Open(src)
	if openErr != nil {
		return openErr
	}
	defer func() { _ = in.Close() }()
	if _, err := writeAtomic(context.Background(), dst, in); err != nil {
		return err
	}
	return os.Remove(src)
}

func writeAtomic(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, err
	}
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, err
	}
	defer func() { _ = pf.Cleanup() }()

	n, err := io.Copy(pf, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return n, err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return n, err
	}
	return n, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
