// SPDX-License-Identifier: MIT

package config

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anilwee/dialog/internal/validate"
)

var (
	strategies    = []string{"exact", "contains", "regex", "id", "fuzzy"}
	providers     = []string{"google", "libretranslate", "none"}
	cacheBackends = []string{"json", "sqlite", "badger", "redis", "memory"}
	tiledFormats  = []string{"tiled", "dialog"}
	otlpExporters = []string{"grpc", "http"}
)

// Validate checks the resolved configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("input", cfg.Input)
	v.NotEmpty("output", cfg.Output)
	v.Range("maxSizeMB", cfg.MaxSizeMB, 1, 8192)

	v.OneOf("match.strategy", strings.ToLower(cfg.Match.Strategy), strategies)
	v.Range("match.fuzzyMax", cfg.Match.FuzzyMax, 0, 10)
	v.DurationRange("match.window", cfg.Match.Window, 0, 30*24*time.Hour)
	if strings.EqualFold(cfg.Match.Strategy, "regex") {
		v.Regexps("match.channels", cfg.Match.Channels)
	}

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	if cfg.Translate.Enabled {
		t := cfg.Translate
		v.NotEmpty("translate.output", t.Output)
		v.LanguageTag("translate.source", t.Source)
		v.LanguageTag("translate.target", t.Target)
		v.OneOf("translate.provider", t.Provider, providers)
		v.OneOf("translate.cache.backend", t.Cache.Backend, cacheBackends)
		v.DurationRange("translate.delay", t.Delay, 0, time.Minute)
		v.DurationRange("translate.timeout", t.Timeout, time.Second, 5*time.Minute)
		v.Range("translate.breaker.threshold", t.Breaker.Threshold, 1, 1000)
		if t.Provider == "libretranslate" {
			v.URL("translate.endpoint", t.Endpoint, []string{"http", "https"})
		}
		switch t.Cache.Backend {
		case "json", "sqlite", "badger":
			v.NotEmpty("translate.cache.path", t.Cache.Path)
		case "redis":
			v.NotEmpty("translate.cache.redisAddr", t.Cache.RedisAddr)
		}
	}

	if cfg.Tiled.Enabled {
		v.NotEmpty("tiled.output", cfg.Tiled.Output)
		v.OneOf("tiled.format", strings.ToLower(cfg.Tiled.Format), tiledFormats)
	}

	v.URL("feed.url", cfg.Feed.URL, []string{"http", "https"})
	v.NotEmpty("feed.publicDir", cfg.Feed.PublicDir)
	if cfg.VPN.Enabled {
		v.URL("vpn.checkURL", cfg.VPN.CheckURL, []string{"http", "https"})
		v.DurationRange("vpn.settle", cfg.VPN.Settle, 0, 5*time.Minute)
		v.NotEmpty("vpn.binary", cfg.VPN.Binary)
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			v.AddError("schedule", "invalid cron expression: "+err.Error(), cfg.Schedule)
		}
	}

	v.ListenAddr("serve.listen", cfg.Serve.Listen)
	v.NonNegative("serve.rateLimit", cfg.Serve.RateLimit)

	if cfg.Telemetry.Enabled {
		tm := cfg.Telemetry
		v.OneOf("telemetry.exporter", strings.ToLower(tm.Exporter), otlpExporters)
		v.NotEmpty("telemetry.endpoint", tm.Endpoint)
		if tm.SamplingRate < 0 || tm.SamplingRate > 1 {
			v.AddError("telemetry.samplingRate", "must be between 0 and 1", tm.SamplingRate)
		}
	}

	return v.Err()
}
