// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvInput          = "LKEPG_INPUT"
	EnvOutput         = "LKEPG_OUTPUT"
	EnvLenient        = "LKEPG_LENIENT"
	EnvMaxSizeMB      = "LKEPG_MAX_SIZE_MB"
	EnvSchedule       = "LKEPG_SCHEDULE"
	EnvMatch          = "LKEPG_MATCH"
	EnvChannels       = "LKEPG_CHANNELS"
	EnvFuzzyMax       = "LKEPG_FUZZY_MAX"
	EnvWindow         = "LKEPG_WINDOW"
	EnvTranslate      = "LKEPG_TRANSLATE"
	EnvTranslatedOut  = "LKEPG_TRANSLATE_OUTPUT"
	EnvSourceLang     = "LKEPG_TRANSLATE_SOURCE"
	EnvTargetLang     = "LKEPG_TRANSLATE_TARGET"
	EnvMappings       = "LKEPG_TRANSLATE_MAPPINGS"
	EnvProvider       = "LKEPG_TRANSLATE_PROVIDER"
	EnvEndpoint       = "LKEPG_TRANSLATE_ENDPOINT"
	EnvAPIKey         = "LKEPG_TRANSLATE_API_KEY"
	EnvDelay          = "LKEPG_TRANSLATE_DELAY"
	EnvTimeout        = "LKEPG_TRANSLATE_TIMEOUT"
	EnvCacheBackend   = "LKEPG_CACHE_BACKEND"
	EnvCachePath      = "LKEPG_CACHE_PATH"
	EnvRedisAddr      = "LKEPG_REDIS_ADDR"
	EnvTiled          = "LKEPG_TILED"
	EnvTiledOut       = "LKEPG_TILED_OUTPUT"
	EnvTiledFormat    = "LKEPG_TILED_FORMAT"
	EnvFeedURL        = "LKEPG_FEED_URL"
	EnvPublicDir      = "LKEPG_PUBLIC_DIR"
	EnvVPN            = "LKEPG_VPN"
	EnvOVPNFile       = "OVPN_FILE"
	EnvVPNUsername    = "VPN_USERNAME"
	EnvVPNPassword    = "VPN_PASSWORD"
	EnvVPNSudo        = "LKEPG_VPN_SUDO"
	EnvVPNSettle      = "LKEPG_VPN_SETTLE"
	EnvVPNCheckURL    = "LKEPG_VPN_CHECK_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFile        = "LKEPG_LOG_FILE"
	EnvMetricsFile    = "LKEPG_METRICS_FILE"
	EnvListen         = "LKEPG_LISTEN"
	EnvServeRateLimit = "LKEPG_RATE_LIMIT"
	EnvTelemetry      = "LKEPG_TELEMETRY"
	EnvOTLPExporter   = "LKEPG_OTLP_EXPORTER"
	EnvOTLPEndpoint   = "LKEPG_OTLP_ENDPOINT"
	EnvTraceSampling  = "LKEPG_TRACE_SAMPLING"
)

// Loader resolves configuration with precedence defaults < file < environment.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load builds and validates the configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnvConfig(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Input:     DefaultInput,
		Output:    DefaultOutput,
		Lenient:   true,
		MaxSizeMB: 512,
		Match: MatchConfig{
			Strategy: DefaultMatch,
			FuzzyMax: 2,
		},
		Translate: TranslateConfig{
			Output:   DefaultTranslated,
			Source:   DefaultSourceLang,
			Target:   DefaultTargetLang,
			Mappings: DefaultMappings,
			Provider: DefaultProvider,
			Delay:    500 * time.Millisecond,
			Timeout:  10 * time.Second,
			Breaker:  BreakerConfig{Threshold: 5, Reset: time.Minute},
			Cache:    CacheConfig{Backend: DefaultCacheDriver, Path: DefaultCachePath},
		},
		Tiled: TiledConfig{Output: DefaultTiled, Format: DefaultTiledFormat},
		Feed: FeedConfig{
			URL:       DefaultFeedURL,
			PublicDir: DefaultPublicDir,
			Timeout:   5 * time.Minute,
		},
		VPN: VPNConfig{
			Enabled:  true,
			WorkDir:  ".",
			Binary:   "openvpn",
			Sudo:     true,
			Settle:   10 * time.Second,
			CheckURL: DefaultCheckURL,
		},
		Log:   LogConfig{Level: "info"},
		Serve: ServeConfig{Listen: DefaultListen, Dir: DefaultPublicDir, RateLimit: 60},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultOTLP,
			Endpoint:     DefaultOTLPAddr,
			SamplingRate: 1,
		},
	}
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.Input, f.Input)
	setString(&cfg.Output, f.Output)
	setBool(&cfg.Lenient, f.Lenient)
	setInt(&cfg.MaxSizeMB, f.MaxSizeMB)
	setString(&cfg.Schedule, f.Schedule)

	var errs []error
	dur := func(dst *time.Duration, field, v string) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}

	if m := f.Match; m != nil {
		setString(&cfg.Match.Strategy, m.Strategy)
		if len(m.Channels) > 0 {
			cfg.Match.Channels = m.Channels
		}
		setInt(&cfg.Match.FuzzyMax, m.FuzzyMax)
		dur(&cfg.Match.Window, "match.window", m.Window)
		if len(m.RootAttrs) > 0 {
			cfg.Match.RootAttrs = m.RootAttrs
		}
	}
	if t := f.Translate; t != nil {
		setBool(&cfg.Translate.Enabled, t.Enabled)
		setString(&cfg.Translate.Output, t.Output)
		setString(&cfg.Translate.Source, t.Source)
		setString(&cfg.Translate.Target, t.Target)
		setString(&cfg.Translate.Mappings, t.Mappings)
		setString(&cfg.Translate.Provider, t.Provider)
		setString(&cfg.Translate.Endpoint, t.Endpoint)
		setString(&cfg.Translate.APIKey, t.APIKey)
		dur(&cfg.Translate.Delay, "translate.delay", t.Delay)
		dur(&cfg.Translate.Timeout, "translate.timeout", t.Timeout)
		setBool(&cfg.Translate.Untagged, t.Untagged)
		setBool(&cfg.Translate.Channels, t.Channels)
		if b := t.Breaker; b != nil {
			setInt(&cfg.Translate.Breaker.Threshold, b.Threshold)
			dur(&cfg.Translate.Breaker.Reset, "translate.breaker.reset", b.Reset)
		}
		if c := t.Cache; c != nil {
			setString(&cfg.Translate.Cache.Backend, c.Backend)
			setString(&cfg.Translate.Cache.Path, c.Path)
			setString(&cfg.Translate.Cache.RedisAddr, c.RedisAddr)
		}
	}
	if t := f.Tiled; t != nil {
		setBool(&cfg.Tiled.Enabled, t.Enabled)
		setString(&cfg.Tiled.Output, t.Output)
		setString(&cfg.Tiled.Format, t.Format)
	}
	if fd := f.Feed; fd != nil {
		setString(&cfg.Feed.URL, fd.URL)
		setString(&cfg.Feed.PublicDir, fd.PublicDir)
		dur(&cfg.Feed.Timeout, "feed.timeout", fd.Timeout)
	}
	if v := f.VPN; v != nil {
		setBool(&cfg.VPN.Enabled, v.Enabled)
		setString(&cfg.VPN.WorkDir, v.WorkDir)
		setString(&cfg.VPN.Binary, v.Binary)
		setBool(&cfg.VPN.Sudo, v.Sudo)
		dur(&cfg.VPN.Settle, "vpn.settle", v.Settle)
		setString(&cfg.VPN.CheckURL, v.CheckURL)
	}
	if lg := f.Log; lg != nil {
		setString(&cfg.Log.Level, lg.Level)
		setString(&cfg.Log.File, lg.File)
	}
	if m := f.Metrics; m != nil {
		setString(&cfg.Metrics.File, m.File)
	}
	if s := f.Serve; s != nil {
		setString(&cfg.Serve.Listen, s.Listen)
		setString(&cfg.Serve.Dir, s.Dir)
		setInt(&cfg.Serve.RateLimit, s.RateLimit)
	}
	if tm := f.Telemetry; tm != nil {
		setBool(&cfg.Telemetry.Enabled, tm.Enabled)
		setString(&cfg.Telemetry.Exporter, tm.Exporter)
		setString(&cfg.Telemetry.Endpoint, tm.Endpoint)
		if tm.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *tm.SamplingRate
		}
	}
	return errors.Join(errs...)
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.Input = ParseString(EnvInput, cfg.Input)
	cfg.Output = ParseString(EnvOutput, cfg.Output)
	cfg.Lenient = ParseBool(EnvLenient, cfg.Lenient)
	cfg.MaxSizeMB = ParseInt(EnvMaxSizeMB, cfg.MaxSizeMB)
	cfg.Schedule = ParseString(EnvSchedule, cfg.Schedule)

	cfg.Match.Strategy = ParseString(EnvMatch, cfg.Match.Strategy)
	cfg.Match.Channels = ParseList(EnvChannels, cfg.Match.Channels)
	cfg.Match.FuzzyMax = ParseInt(EnvFuzzyMax, cfg.Match.FuzzyMax)
	cfg.Match.Window = ParseDuration(EnvWindow, cfg.Match.Window)

	cfg.Translate.Enabled = ParseBool(EnvTranslate, cfg.Translate.Enabled)
	cfg.Translate.Output = ParseString(EnvTranslatedOut, cfg.Translate.Output)
	cfg.Translate.Source = ParseString(EnvSourceLang, cfg.Translate.Source)
	cfg.Translate.Target = ParseString(EnvTargetLang, cfg.Translate.Target)
	cfg.Translate.Mappings = ParseString(EnvMappings, cfg.Translate.Mappings)
	cfg.Translate.Provider = ParseString(EnvProvider, cfg.Translate.Provider)
	cfg.Translate.Endpoint = ParseString(EnvEndpoint, cfg.Translate.Endpoint)
	cfg.Translate.APIKey = ParseString(EnvAPIKey, cfg.Translate.APIKey)
	cfg.Translate.Delay = ParseDuration(EnvDelay, cfg.Translate.Delay)
	cfg.Translate.Timeout = ParseDuration(EnvTimeout, cfg.Translate.Timeout)
	cfg.Translate.Cache.Backend = ParseString(EnvCacheBackend, cfg.Translate.Cache.Backend)
	cfg.Translate.Cache.Path = ParseString(EnvCachePath, cfg.Translate.Cache.Path)
	cfg.Translate.Cache.RedisAddr = ParseString(EnvRedisAddr, cfg.Translate.Cache.RedisAddr)

	cfg.Tiled.Enabled = ParseBool(EnvTiled, cfg.Tiled.Enabled)
	cfg.Tiled.Output = ParseString(EnvTiledOut, cfg.Tiled.Output)
	cfg.Tiled.Format = ParseString(EnvTiledFormat, cfg.Tiled.Format)

	cfg.Feed.URL = ParseString(EnvFeedURL, cfg.Feed.URL)
	cfg.Feed.PublicDir = ParseString(EnvPublicDir, cfg.Feed.PublicDir)

	cfg.VPN.Enabled = ParseBool(EnvVPN, cfg.VPN.Enabled)
	cfg.VPN.Config = ParseString(EnvOVPNFile, cfg.VPN.Config)
	cfg.VPN.Username = ParseString(EnvVPNUsername, cfg.VPN.Username)
	cfg.VPN.Password = ParseString(EnvVPNPassword, cfg.VPN.Password)
	cfg.VPN.Sudo = ParseBool(EnvVPNSudo, cfg.VPN.Sudo)
	cfg.VPN.Settle = ParseDuration(EnvVPNSettle, cfg.VPN.Settle)
	cfg.VPN.CheckURL = ParseString(EnvVPNCheckURL, cfg.VPN.CheckURL)

	cfg.Log.Level = ParseString(EnvLogLevel, cfg.Log.Level)
	cfg.Log.File = ParseString(EnvLogFile, cfg.Log.File)
	cfg.Metrics.File = ParseString(EnvMetricsFile, cfg.Metrics.File)
	cfg.Serve.Listen = ParseString(EnvListen, cfg.Serve.Listen)
	cfg.Serve.RateLimit = ParseInt(EnvServeRateLimit, cfg.Serve.RateLimit)

	cfg.Telemetry.Enabled = ParseBool(EnvTelemetry, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvOTLPExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvTraceSampling, cfg.Telemetry.SamplingRate)
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. With no paths it loads ./.env
// when present.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
