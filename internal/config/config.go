// SPDX-License-Identifier: MIT

// Package config loads lkepg settings from defaults, an optional YAML file,
// the environment and .env files, in that order of precedence.
package config

import "time"

// Defaults for the published artifacts.
const (
	DefaultInput       = "public/epg.xml"
	DefaultOutput      = "public/lk.xml"
	DefaultTranslated  = "public/si.xml"
	DefaultTiled       = "public/dialog.xml"
	DefaultTiledFormat = "tiled"
	DefaultPublicDir   = "public"
	DefaultFeedURL     = "https://watch.livecricketsl.xyz/epg/epg.xml.gz"
	DefaultCheckURL    = "https://ipinfo.io"
	DefaultMappings    = "translation_mappings.yml"
	DefaultCachePath   = "translation_cache.json"
	DefaultListen      = ":8080"
	DefaultMatch       = "regex"
	DefaultSourceLang  = "en"
	DefaultTargetLang  = "si"
	DefaultProvider    = "google"
	DefaultCacheDriver = "json"
	DefaultOTLP        = "grpc"
	DefaultOTLPAddr    = "localhost:4317"
)

// AppConfig is the resolved configuration used by every command.
type AppConfig struct {
	Version string

	Input     string
	Output    string
	Lenient   bool
	MaxSizeMB int

	Match     MatchConfig
	Translate TranslateConfig
	Tiled     TiledConfig
	Feed      FeedConfig
	VPN       VPNConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Serve     ServeConfig
	Telemetry TelemetryConfig

	// Schedule is a cron expression for `run --cron`; empty runs once.
	Schedule string
}

// MatchConfig selects channels.
type MatchConfig struct {
	Strategy string
	Channels []string
	FuzzyMax int
	// Window keeps programmes starting within this horizon; 0 keeps all.
	Window time.Duration
	// RootAttrs are set on the output <tv> element, e.g. source: customized.
	RootAttrs map[string]string
}

// TranslateConfig drives the translation pass.
type TranslateConfig struct {
	Enabled  bool
	Output   string
	Source   string
	Target   string
	Mappings string
	Provider string
	Endpoint string
	APIKey   string
	Delay    time.Duration
	Timeout  time.Duration
	Untagged bool
	Channels bool
	Breaker  BreakerConfig
	Cache    CacheConfig
}

// BreakerConfig tunes the remote translation circuit breaker.
type BreakerConfig struct {
	Threshold int
	Reset     time.Duration
}

// CacheConfig selects the translation cache backend.
type CacheConfig struct {
	Backend   string
	Path      string
	RedisAddr string
}

// TiledConfig controls the dialog projection. Format is "tiled"
// (<TiledEPG><Tile>) or "dialog" (<dialog><entry>).
type TiledConfig struct {
	Enabled bool
	Output  string
	Format  string
}

// FeedConfig describes the upstream guide.
type FeedConfig struct {
	URL       string
	PublicDir string
	Timeout   time.Duration
}

// VPNConfig controls tunnel bring-up before downloading.
type VPNConfig struct {
	Enabled  bool
	Config   string `json:"-"`
	Username string `json:"-"`
	Password string `json:"-"`
	WorkDir  string
	Binary   string
	Sudo     bool
	Settle   time.Duration
	CheckURL string
}

// LogConfig controls logging sinks.
type LogConfig struct {
	Level string
	File  string
}

// MetricsConfig controls the textfile exporter.
type MetricsConfig struct {
	File string
}

// ServeConfig controls the static publisher.
type ServeConfig struct {
	Listen    string
	Dir       string
	RateLimit int
}

// TelemetryConfig controls OTLP trace export. Off by default.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// FileConfig is the YAML file schema. Unset fields keep their defaults.
type FileConfig struct {
	Input     string         `yaml:"input,omitempty"`
	Output    string         `yaml:"output,omitempty"`
	Lenient   *bool          `yaml:"lenient,omitempty"`
	MaxSizeMB *int           `yaml:"maxSizeMB,omitempty"`
	Schedule  string         `yaml:"schedule,omitempty"`
	Match     *FileMatch     `yaml:"match,omitempty"`
	Translate *FileTranslate `yaml:"translate,omitempty"`
	Tiled     *FileTiled     `yaml:"tiled,omitempty"`
	Feed      *FileFeed      `yaml:"feed,omitempty"`
	VPN       *FileVPN       `yaml:"vpn,omitempty"`
	Log       *FileLog       `yaml:"log,omitempty"`
	Metrics   *FileMetrics   `yaml:"metrics,omitempty"`
	Serve     *FileServe     `yaml:"serve,omitempty"`
	Telemetry *FileTelemetry `yaml:"telemetry,omitempty"`
}

type FileMatch struct {
	Strategy  string            `yaml:"strategy,omitempty"`
	Channels  []string          `yaml:"channels,omitempty"`
	FuzzyMax  *int              `yaml:"fuzzyMax,omitempty"`
	Window    string            `yaml:"window,omitempty"`
	RootAttrs map[string]string `yaml:"rootAttrs,omitempty"`
}

type FileTranslate struct {
	Enabled  *bool        `yaml:"enabled,omitempty"`
	Output   string       `yaml:"output,omitempty"`
	Source   string       `yaml:"source,omitempty"`
	Target   string       `yaml:"target,omitempty"`
	Mappings string       `yaml:"mappings,omitempty"`
	Provider string       `yaml:"provider,omitempty"`
	Endpoint string       `yaml:"endpoint,omitempty"`
	APIKey   string       `yaml:"apiKey,omitempty"`
	Delay    string       `yaml:"delay,omitempty"`
	Timeout  string       `yaml:"timeout,omitempty"`
	Untagged *bool        `yaml:"untagged,omitempty"`
	Channels *bool        `yaml:"channels,omitempty"`
	Breaker  *FileBreaker `yaml:"breaker,omitempty"`
	Cache    *FileCache   `yaml:"cache,omitempty"`
}

type FileBreaker struct {
	Threshold *int   `yaml:"threshold,omitempty"`
	Reset     string `yaml:"reset,omitempty"`
}

type FileCache struct {
	Backend   string `yaml:"backend,omitempty"`
	Path      string `yaml:"path,omitempty"`
	RedisAddr string `yaml:"redisAddr,omitempty"`
}

type FileTiled struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Output  string `yaml:"output,omitempty"`
	Format  string `yaml:"format,omitempty"`
}

type FileFeed struct {
	URL       string `yaml:"url,omitempty"`
	PublicDir string `yaml:"publicDir,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// FileVPN has no credential fields; OVPN_FILE, VPN_USERNAME and VPN_PASSWORD
// are read from the environment only.
type FileVPN struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	WorkDir  string `yaml:"workDir,omitempty"`
	Binary   string `yaml:"binary,omitempty"`
	Sudo     *bool  `yaml:"sudo,omitempty"`
	Settle   string `yaml:"settle,omitempty"`
	CheckURL string `yaml:"checkURL,omitempty"`
}

type FileLog struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

type FileMetrics struct {
	File string `yaml:"file,omitempty"`
}

type FileServe struct {
	Listen    string `yaml:"listen,omitempty"`
	Dir       string `yaml:"dir,omitempty"`
	RateLimit *int   `yaml:"rateLimit,omitempty"`
}

type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
