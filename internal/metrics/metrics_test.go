// SPDX-License-Identifier: MIT

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFilter(t *testing.T) {
	RecordFilter(120, 30, 5000, 900, 2, 1)

	assert.Equal(t, 120.0, testutil.ToFloat64(channelsSeen))
	assert.Equal(t, 30.0, testutil.ToFloat64(channelsKept))
	assert.Equal(t, 5000.0, testutil.ToFloat64(programmesSeen))
	assert.Equal(t, 900.0, testutil.ToFloat64(programmesKept))
}

func TestRecordTranslation(t *testing.T) {
	before := testutil.ToFloat64(translationsTotal.WithLabelValues("cache"))
	RecordTranslation("cache")
	RecordTranslation("cache")
	assert.Equal(t, before+2, testutil.ToFloat64(translationsTotal.WithLabelValues("cache")))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("translate", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("translate", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("translate", "closed")))

	SetCircuitBreakerState("translate", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("translate", "open")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("filter", 20*time.Millisecond, nil)
	ObserveStage("filter", time.Second, errors.New("boom"))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(stageDuration), 2)
}

func TestWriteTextfile(t *testing.T) {
	AddDownloadedBytes(1024)
	MarkSuccess(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "lkepg.prom")
	require.NoError(t, WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "lkepg_feed_downloaded_bytes_total")
	assert.Contains(t, string(raw), "lkepg_last_success_timestamp_seconds ")
}
