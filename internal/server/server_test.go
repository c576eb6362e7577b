// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestHandler(t *testing.T, rateLimit int) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lk.xml"), []byte("<tv></tv>\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "epg.xml.gz"), []byte{0x1f, 0x8b}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.txt"), []byte("user\npass\n"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.xml"), 0o750))
	return NewHandler(Config{Dir: dir, RateLimit: rateLimit}, zerolog.Nop()), dir
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:1234"
	h.ServeHTTP(rec, req)
	return rec
}

func TestServesGuides(t *testing.T) {
	h, _ := newTestHandler(t, 0)

	rec := get(h, "/lk.xml")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<tv></tv>\n", rec.Body.String())

	rec = get(h, "/epg.xml.gz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
}

func TestRefusesOtherFiles(t *testing.T) {
	h, _ := newTestHandler(t, 0)
	for _, p := range []string{"/auth.txt", "/missing.xml", "/nested.xml", "/..%2fetc%2fpasswd.xml", "/.hidden.xml"} {
		assert.Equal(t, http.StatusNotFound, get(h, p).Code, p)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t, 0)
	rec := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	get(h, "/lk.xml")
	rec = get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lkepg_http_requests_total")
}

func TestTracesGuideRequestsOnly(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h, _ := newTestHandler(t, 0)
	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(h, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(h, "/lk.xml").Code)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /lk.xml", spans[0].Name())
}

func TestRateLimitPerIP(t *testing.T) {
	h, _ := newTestHandler(t, 2)
	assert.Equal(t, http.StatusOK, get(h, "/lk.xml").Code)
	assert.Equal(t, http.StatusOK, get(h, "/lk.xml").Code)
	rec := get(h, "/lk.xml")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code, "health checks are not limited")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Config{Listen: addr, Dir: t.TempDir()}, zerolog.Nop()) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunListenError(t *testing.T) {
	err := Run(context.Background(), Config{Listen: "256.0.0.1:bad"}, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listen"))
}
