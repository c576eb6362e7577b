// SPDX-License-Identifier: MIT

package vpn

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/anilwee/dialog/internal/feed"
	lklog "github.com/anilwee/dialog/internal/log"
)

// AcquireConfig drives one feed acquisition.
type AcquireConfig struct {
	// UseVPN brings the tunnel up before downloading.
	UseVPN    bool
	VPN       Config
	FeedURL   string
	WorkDir   string
	PublicDir string
}

// Result lists the published artifacts.
type Result struct {
	Compressed string
	Extracted  string
	Bytes      int64
	IPInfo     string
}

// Acquire brings up the tunnel (when enabled), downloads the compressed
// feed, extracts it and moves both files into the public directory. Any
// failure aborts before publishing and the tunnel is always torn down.
func Acquire(ctx context.Context, cfg AcquireConfig, fetcher *feed.Fetcher, logger zerolog.Logger) (res Result, err error) {
	logger = lklog.WithContext(ctx, logger.With().Str(lklog.FieldComponent, "acquire").Logger())
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}

	if cfg.UseVPN {
		if cfg.VPN.WorkDir == "" {
			cfg.VPN.WorkDir = cfg.WorkDir
		}
		tunnel := NewTunnel(cfg.VPN, logger)
		defer func() {
			if stopErr := tunnel.Stop(); stopErr != nil {
				logger.Warn().Err(stopErr).Msg("vpn cleanup failed")
			}
		}()
		if err := tunnel.Prepare(); err != nil {
			return res, err
		}
		if err := tunnel.Start(ctx); err != nil {
			return res, err
		}
		if res.IPInfo, err = tunnel.Verify(ctx); err != nil {
			return res, err
		}
	}

	base := filepath.Base(cfg.FeedURL)
	if base == "." || base == "/" || filepath.Ext(base) != ".gz" {
		base = "epg.xml.gz"
	}
	gzPath := filepath.Join(cfg.WorkDir, base)
	xmlPath := filepath.Join(cfg.WorkDir, "epg.xml")

	if res.Bytes, err = fetcher.Download(ctx, cfg.FeedURL, gzPath); err != nil {
		return res, err
	}
	if _, err = feed.Extract(ctx, gzPath, xmlPath); err != nil {
		return res, err
	}
	published, err := feed.Publish(cfg.PublicDir, gzPath, xmlPath)
	if err != nil {
		return res, fmt.Errorf("publish feed: %w", err)
	}
	res.Compressed, res.Extracted = published[0], published[1]
	logger.Info().
		Str(lklog.FieldOutput, res.Extracted).
		Int64(lklog.FieldBytes, res.Bytes).
		Msg("feed acquired")
	return res, nil
}
