// SPDX-License-Identifier: MIT

// Package metrics exposes lkepg Prometheus metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelsSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lkepg_channels_seen",
		Help: "Channels in the source guide (last filter run)",
	})
	channelsKept = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lkepg_channels_kept",
		Help: "Channels retained by the filter (last filter run)",
	})
	programmesSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lkepg_programmes_seen",
		Help: "Programmes in the source guide (last filter run)",
	})
	programmesKept = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lkepg_programmes_kept",
		Help: "Programmes retained by the filter (last filter run)",
	})
	recordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lkepg_records_skipped_total",
		Help: "Records skipped for missing fields, by kind",
	}, []string{"kind"}) // kind=channel|programme

	translationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lkepg_translations_total",
		Help: "Translated texts by resolution source",
	}, []string{"source"}) // source=mapping|mapping_ci|cache|remote|skipped|fallback
	remoteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lkepg_translation_remote_failures_total",
		Help: "Failed remote translation calls by provider",
	}, []string{"provider"})

	downloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lkepg_feed_downloaded_bytes_total",
		Help: "Bytes downloaded from the upstream feed",
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lkepg_stage_duration_seconds",
		Help:    "Pipeline stage duration by outcome",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"stage", "outcome"}) // outcome=success|failure
	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lkepg_last_success_timestamp_seconds",
		Help: "Unix time of the last fully successful pipeline run",
	})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lkepg_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state)",
	}, []string{"name", "state"})
	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lkepg_circuit_breaker_trips_total",
		Help: "Circuit breaker trips by reason",
	}, []string{"name", "reason"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lkepg_http_requests_total",
		Help: "Requests served by the publisher by route and status class",
	}, []string{"route", "code"})
)

// RecordFilter publishes the counts of the last filter run.
func RecordFilter(chSeen, chKept, progSeen, progKept, chSkipped, progSkipped int) {
	channelsSeen.Set(float64(chSeen))
	channelsKept.Set(float64(chKept))
	programmesSeen.Set(float64(progSeen))
	programmesKept.Set(float64(progKept))
	recordsSkipped.WithLabelValues("channel").Add(float64(chSkipped))
	recordsSkipped.WithLabelValues("programme").Add(float64(progSkipped))
}

// RecordTranslation counts one resolved text by source.
func RecordTranslation(source string) {
	translationsTotal.WithLabelValues(source).Inc()
}

// RecordRemoteFailure counts one failed provider call.
func RecordRemoteFailure(provider string) {
	remoteFailures.WithLabelValues(provider).Inc()
}

// AddDownloadedBytes adds to the downloaded byte counter.
func AddDownloadedBytes(n int64) {
	if n > 0 {
		downloadedBytes.Add(float64(n))
	}
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// MarkSuccess stamps the last successful run.
func MarkSuccess(t time.Time) {
	lastSuccess.Set(float64(t.Unix()))
}

// SetCircuitBreakerState flags the active state of a breaker.
func SetCircuitBreakerState(name, state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(route string, status int) {
	httpRequests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Inc()
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format. The parent directory is created when missing.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
