// SPDX-License-Identifier: MIT

package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/anilwee/dialog/internal/config"
	"github.com/anilwee/dialog/internal/epg"
	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/telemetry"
)

const guide = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="upstream">
  <channel id="c1"><display-name>Hiru TV</display-name></channel>
  <channel id="c2"><display-name>Unknown Channel</display-name></channel>
  <programme channel="c1" start="20240101060000 +0530" stop="20240101070000 +0530"><title lang="en">A</title></programme>
  <programme channel="c2" start="20240101060000 +0530"><title lang="en">B</title></programme>
</tv>
`

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "public", "epg.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(input), 0o750))
	require.NoError(t, os.WriteFile(input, []byte(guide), 0o600))

	cfg := config.Defaults()
	cfg.Input = input
	cfg.Output = filepath.Join(dir, "public", "lk.xml")
	cfg.Match.Strategy = epg.StrategyExact
	cfg.Match.Channels = []string{"Hiru TV"}
	cfg.Match.RootAttrs = map[string]string{"source": "customized"}
	cfg.Translate.Enabled = true
	cfg.Translate.Output = filepath.Join(dir, "public", "si.xml")
	cfg.Translate.Provider = "none"
	cfg.Translate.Mappings = filepath.Join(dir, "mappings.yml")
	cfg.Translate.Cache.Path = filepath.Join(dir, "translation_cache.json")
	cfg.Tiled.Enabled = true
	cfg.Tiled.Output = filepath.Join(dir, "public", "dialog.xml")
	require.NoError(t, os.WriteFile(cfg.Translate.Mappings, []byte("A: ඒ\n"), 0o600))
	return &cfg
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	var runID string
	r := NewRunner(zerolog.Nop(),
		Stage{Name: "one", Run: func(ctx context.Context) error {
			order = append(order, "one")
			runID = lklog.RunIDFromContext(ctx)
			assert.Equal(t, "one", lklog.StageFromContext(ctx))
			return nil
		}},
		Stage{Name: "two", Run: func(context.Context) error { order = append(order, "two"); return boom }},
		Stage{Name: "three", Run: func(context.Context) error { order = append(order, "three"); return nil }},
	)
	r.MetricsFile = filepath.Join(t.TempDir(), "metrics", "lkepg.prom")

	rep, err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage two")
	assert.Equal(t, []string{"one", "two"}, order)
	assert.Len(t, rep.Stages, 2)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, rep.RunID, runID)
	assert.FileExists(t, r.MetricsFile)
}

func TestRunnerRecordsStageSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	boom := errors.New("boom")
	r := NewRunner(zerolog.Nop(),
		Stage{Name: "filter", Run: func(context.Context) error { return nil }},
		Stage{Name: "translate", Run: func(context.Context) error { return boom }},
	)
	rep, err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	byName := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		byName[s.Name()] = s
	}
	run := byName["pipeline.run"]
	require.NotNil(t, run)
	for _, name := range []string{"pipeline.stage filter", "pipeline.stage translate"} {
		s := byName[name]
		require.NotNil(t, s, name)
		assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID(), name)
		attrs := make(map[string]string)
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, rep.RunID, attrs[string(telemetry.RunIDKey)], name)
	}
	assert.Equal(t, codes.Error, byName["pipeline.stage translate"].Status().Code)
	assert.Equal(t, codes.Error, run.Status().Code)
	assert.Equal(t, codes.Unset, byName["pipeline.stage filter"].Status().Code)
}

func TestPlanFullRun(t *testing.T) {
	cfg := testConfig(t)
	stages := Plan(cfg, PlanOptions{})
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StageFilter, StageTranslate, StageTiled}, names)

	_, err := NewRunner(zerolog.Nop(), stages...).Run(context.Background())
	require.NoError(t, err)

	lk, err := epg.ReadFile(cfg.Output, epg.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, lk.Channels, 1)
	assert.Equal(t, "c1", lk.Channels[0].ID())
	require.Len(t, lk.Programmes, 1)
	assert.Equal(t, "A", lk.Programmes[0].Title())
	assert.Equal(t, "customized", lk.Attr("source"))
	assert.Equal(t, "upstream", lk.Attr("generator-info-name"))

	si, err := epg.ReadFile(cfg.Translate.Output, epg.DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ඒ", si.Programmes[0].Title())
	assert.Equal(t, "si", si.Programmes[0].Titles[0].Lang)

	tiled, err := os.ReadFile(cfg.Tiled.Output)
	require.NoError(t, err)
	assert.Contains(t, string(tiled), `<Tile channel="c1"`)
	assert.Contains(t, string(tiled), `<Title>A</Title>`)
}

func TestTiledDialogFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tiled.Format = epg.FormatDialog
	filtered, _, err := Filter(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, Tiled(context.Background(), cfg, filtered))

	raw, err := os.ReadFile(cfg.Tiled.Output)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<dialog>")
	assert.Contains(t, string(raw), "<title>A</title>")
	assert.Contains(t, string(raw), "<channel>c1</channel>")

	cfg.Tiled.Format = "jtv"
	assert.ErrorIs(t, Tiled(context.Background(), cfg, filtered), epg.ErrUnknownFormat)
}

func TestFilterMissingInputWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input = filepath.Join(t.TempDir(), "absent.xml")
	_, _, err := Filter(context.Background(), cfg)
	require.ErrorIs(t, err, epg.ErrInputNotFound)
	assert.NoFileExists(t, cfg.Output)
}

func TestFilterMalformedWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lenient = false
	require.NoError(t, os.WriteFile(cfg.Input, []byte(`<tv><channel id="c1"></tv>`), 0o600))
	_, _, err := Filter(context.Background(), cfg)
	var pe *epg.ParseError
	require.ErrorAs(t, err, &pe)
	assert.NoFileExists(t, cfg.Output)
}

func TestTranslateReadsFilteredOutput(t *testing.T) {
	cfg := testConfig(t)
	_, _, err := Filter(context.Background(), cfg)
	require.NoError(t, err)

	out, stats, err := Translate(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ඒ", out.Programmes[0].Title())
	assert.Equal(t, 1, stats.Mapping)
}

func TestWatchRerunsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "epg.xml")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o600))

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 50*time.Millisecond, func(context.Context) error {
			runs.Add(1)
			return nil
		}, zerolog.Nop())
	}()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("burst"), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.xml"), []byte("x"), 0o600))

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "a burst of writes is one run")

	cancel()
	require.NoError(t, <-done)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	err := Schedule(context.Background(), "not a cron", false, func(context.Context) error { return nil }, zerolog.Nop())
	require.Error(t, err)
}

func TestScheduleRunsNowAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Schedule(ctx, "@every 1h", true, func(context.Context) error {
			runs.Add(1)
			return nil
		}, zerolog.Nop())
	}()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestReadGuideFromURL(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(guide))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/epg.xml.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cfg := testConfig(t)
	tv, err := ReadGuide(context.Background(), cfg, srv.URL+"/epg.xml.gz")
	require.NoError(t, err)
	assert.Len(t, tv.Channels, 2)
	assert.Len(t, tv.Programmes, 2)

	_, err = ReadGuide(context.Background(), cfg, srv.URL+"/missing.xml")
	assert.ErrorIs(t, err, epg.ErrInputNotFound)
}
