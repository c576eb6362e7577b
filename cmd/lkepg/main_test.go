// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

const guide = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="upstream">
  <channel id="hiru.lk"><display-name>Hiru TV</display-name></channel>
  <channel id="bbc.uk"><display-name>BBC One</display-name></channel>
  <programme start="20250101060000 +0530" stop="20250101070000 +0530" channel="hiru.lk">
    <title lang="en">Morning News</title>
  </programme>
  <programme start="20250101060000 +0000" stop="20250101070000 +0000" channel="bbc.uk">
    <title lang="en">Breakfast</title>
  </programme>
</tv>
`

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "lkepg dev")
}

func TestFilterCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "epg.xml")
	out := filepath.Join(dir, "lk.xml")
	require.NoError(t, os.WriteFile(in, []byte(guide), 0o600))
	t.Setenv("LKEPG_INPUT", in)

	var stdout, stderr bytes.Buffer
	code := run([]string{"filter", "--output", out, "--match", "exact", "--channels", "Hiru TV"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `id="hiru.lk"`)
	assert.Contains(t, string(data), "Morning News")
	assert.NotContains(t, string(data), "bbc.uk")
}

func TestFilterMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "lk.xml")

	var stdout, stderr bytes.Buffer
	code := run([]string{"filter", "--input", filepath.Join(dir, "missing.xml"), "--output", out}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "command.failed")
	assert.NoFileExists(t, out)
}

func TestInvalidOverrideRejected(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"filter", "--match", "telepathy"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid configuration")
}

func TestFilterExportsTraces(t *testing.T) {
	var exports atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			exports.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	dir := t.TempDir()
	in := filepath.Join(dir, "epg.xml")
	require.NoError(t, os.WriteFile(in, []byte(guide), 0o600))
	t.Setenv("LKEPG_INPUT", in)
	t.Setenv("LKEPG_TELEMETRY", "true")
	t.Setenv("LKEPG_OTLP_EXPORTER", "http")
	t.Setenv("LKEPG_OTLP_ENDPOINT", strings.TrimPrefix(collector.URL, "http://"))

	var stdout, stderr bytes.Buffer
	code := run([]string{"filter", "--output", filepath.Join(dir, "lk.xml"), "--match", "exact", "--channels", "Hiru TV"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stderr.String(), "tracing enabled")
	assert.Positive(t, exports.Load())
}

func TestTracingRejectsUnknownExporter(t *testing.T) {
	t.Setenv("LKEPG_TELEMETRY", "true")
	t.Setenv("LKEPG_OTLP_EXPORTER", "zipkin")

	var stdout, stderr bytes.Buffer
	code := run([]string{"filter"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "telemetry.exporter")
}
