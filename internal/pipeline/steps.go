// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anilwee/dialog/internal/cache"
	"github.com/anilwee/dialog/internal/config"
	"github.com/anilwee/dialog/internal/epg"
	"github.com/anilwee/dialog/internal/feed"
	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/metrics"
	"github.com/anilwee/dialog/internal/resilience"
	"github.com/anilwee/dialog/internal/translate"
	"github.com/anilwee/dialog/internal/vpn"
)

const feedHeaderTimeout = 30 * time.Second

// Stage names.
const (
	StageFetch     = "fetch"
	StageFilter    = "filter"
	StageTranslate = "translate"
	StageTiled     = "tiled"
)

func decodeOptions(cfg *config.AppConfig, source string) epg.DecodeOptions {
	return epg.DecodeOptions{
		Lenient: cfg.Lenient,
		MaxSize: int64(cfg.MaxSizeMB) << 20,
		Source:  source,
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ReadGuide decodes src, which may be a local path or an http(s) URL.
func ReadGuide(ctx context.Context, cfg *config.AppConfig, src string) (*epg.TV, error) {
	if !isURL(src) {
		return epg.ReadFile(src, decodeOptions(cfg, src))
	}
	fetcher := feed.NewFetcher(feedHeaderTimeout, *lklog.FromContext(ctx))
	body, err := fetcher.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return epg.Decode(body, decodeOptions(cfg, src))
}

// Fetch acquires the upstream feed into the public directory.
func Fetch(ctx context.Context, cfg *config.AppConfig, useVPN bool) (vpn.Result, error) {
	logger := *lklog.FromContext(ctx)
	if cfg.Feed.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Feed.Timeout)
		defer cancel()
	}
	work, err := os.MkdirTemp("", "lkepg-fetch-*")
	if err != nil {
		return vpn.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	return vpn.Acquire(ctx, vpn.AcquireConfig{
		UseVPN: useVPN && cfg.VPN.Enabled,
		VPN: vpn.Config{
			ConfigB64: cfg.VPN.Config,
			Username:  cfg.VPN.Username,
			Password:  cfg.VPN.Password,
			WorkDir:   cfg.VPN.WorkDir,
			Binary:    cfg.VPN.Binary,
			Sudo:      cfg.VPN.Sudo,
			Settle:    cfg.VPN.Settle,
			CheckURL:  cfg.VPN.CheckURL,
		},
		FeedURL:   cfg.Feed.URL,
		WorkDir:   work,
		PublicDir: cfg.Feed.PublicDir,
	}, feed.NewFetcher(feedHeaderTimeout, logger), logger)
}

// Filter reads cfg.Input, keeps the configured channels and writes
// cfg.Output. Nothing is written when reading or parsing fails.
func Filter(ctx context.Context, cfg *config.AppConfig) (*epg.TV, epg.FilterStats, error) {
	logger := *lklog.FromContext(ctx)

	m, err := epg.NewMatcher(cfg.Match.Strategy, cfg.Match.Channels, cfg.Match.FuzzyMax)
	if err != nil {
		return nil, epg.FilterStats{}, err
	}
	tv, err := ReadGuide(ctx, cfg, cfg.Input)
	if err != nil {
		return nil, epg.FilterStats{}, err
	}

	out, stats := epg.Filter(tv, m, epg.FilterOptions{
		Window:       cfg.Match.Window,
		Now:          time.Now(),
		SetRootAttrs: cfg.Match.RootAttrs,
		Logger:       &logger,
	})
	metrics.RecordFilter(stats.ChannelsSeen, stats.ChannelsKept, stats.ProgrammesSeen, stats.ProgrammesKept,
		stats.ChannelsSkipped, stats.ProgrammesSkipped)

	if err := epg.WriteFile(ctx, cfg.Output, out); err != nil {
		return nil, stats, err
	}
	logger.Info().
		Str(lklog.FieldInput, cfg.Input).
		Str(lklog.FieldOutput, cfg.Output).
		Str(lklog.FieldStrategy, cfg.Match.Strategy).
		Int(lklog.FieldChannels, stats.ChannelsKept).
		Int(lklog.FieldProgrammes, stats.ProgrammesKept).
		Int("outside_window", stats.OutsideWindow).
		Msg("guide filtered")
	return out, stats, nil
}

// Translate writes the translated guide to cfg.Translate.Output. When tv is
// nil the filtered guide is read from cfg.Output.
func Translate(ctx context.Context, cfg *config.AppConfig, tv *epg.TV) (_ *epg.TV, _ translate.Stats, err error) {
	logger := *lklog.FromContext(ctx)
	tc := cfg.Translate

	if tv == nil {
		if tv, err = ReadGuide(ctx, cfg, cfg.Output); err != nil {
			return nil, translate.Stats{}, err
		}
	}

	mapping, err := translate.LoadMapping(tc.Mappings, logger)
	if err != nil {
		return nil, translate.Stats{}, err
	}
	provider, err := translate.NewProvider(translate.ProviderConfig{
		Name:     tc.Provider,
		Endpoint: tc.Endpoint,
		APIKey:   tc.APIKey,
		Timeout:  tc.Timeout,
	})
	if err != nil {
		return nil, translate.Stats{}, err
	}
	store, err := cache.Open(ctx, cache.Config{
		Backend:   tc.Cache.Backend,
		Path:      tc.Cache.Path,
		RedisAddr: tc.Cache.RedisAddr,
		Logger:    logger,
	})
	if err != nil {
		return nil, translate.Stats{}, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close translation cache: %w", cerr))
		}
	}()

	breaker := resilience.NewCircuitBreaker("translate_"+provider.Name(), tc.Breaker.Threshold, tc.Breaker.Reset,
		resilience.WithIgnore(func(err error) bool { return errors.Is(err, context.Canceled) }))
	tr := translate.New(mapping, store, provider, translate.Options{
		Source:   tc.Source,
		Target:   tc.Target,
		Delay:    tc.Delay,
		Untagged: tc.Untagged,
		Channels: tc.Channels,
		Breaker:  breaker,
		Logger:   logger,
	})

	out, stats := tr.Document(ctx, tv)
	if err := epg.WriteFile(ctx, tc.Output, out); err != nil {
		return nil, stats, err
	}
	st := store.Stats()
	logger.Info().
		Str(lklog.FieldOutput, tc.Output).
		Str(lklog.FieldBackend, tc.Cache.Backend).
		Int64("cache_hits", st.Hits).
		Int64("cache_puts", st.Puts).
		Msg("translated guide written")
	return out, stats, nil
}

// Tiled writes the cfg.Tiled.Format projection of tv to cfg.Tiled.Output. When tv is
// nil the filtered guide is read from cfg.Output.
func Tiled(ctx context.Context, cfg *config.AppConfig, tv *epg.TV) error {
	if tv == nil {
		var err error
		if tv, err = ReadGuide(ctx, cfg, cfg.Output); err != nil {
			return err
		}
	}
	v, err := epg.Project(tv, cfg.Tiled.Format)
	if err != nil {
		return err
	}
	if err := epg.WriteProjectionFile(ctx, cfg.Tiled.Output, v); err != nil {
		return err
	}
	lklog.FromContext(ctx).Info().
		Str(lklog.FieldOutput, cfg.Tiled.Output).
		Str("format", cfg.Tiled.Format).
		Int(lklog.FieldProgrammes, len(tv.Programmes)).
		Msg("tiled guide written")
	return nil
}

// PlanOptions selects optional stages.
type PlanOptions struct {
	Fetch  bool
	UseVPN bool
}

// Plan builds the stage list for a full run. The filtered guide is handed
// from stage to stage in memory.
func Plan(cfg *config.AppConfig, opts PlanOptions) []Stage {
	var filtered *epg.TV
	var stages []Stage

	if opts.Fetch {
		stages = append(stages, Stage{Name: StageFetch, Run: func(ctx context.Context) error {
			_, err := Fetch(ctx, cfg, opts.UseVPN)
			return err
		}})
	}
	stages = append(stages, Stage{Name: StageFilter, Run: func(ctx context.Context) error {
		out, _, err := Filter(ctx, cfg)
		filtered = out
		return err
	}})
	if cfg.Translate.Enabled {
		stages = append(stages, Stage{Name: StageTranslate, Run: func(ctx context.Context) error {
			_, _, err := Translate(ctx, cfg, filtered)
			return err
		}})
	}
	if cfg.Tiled.Enabled {
		stages = append(stages, Stage{Name: StageTiled, Run: func(ctx context.Context) error {
			return Tiled(ctx, cfg, filtered)
		}})
	}
	return stages
}
