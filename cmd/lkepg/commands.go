// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anilwee/dialog/internal/cache"
	"github.com/anilwee/dialog/internal/feed"
	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/pipeline"
	"github.com/anilwee/dialog/internal/server"
)

const stageExtract = "extract"

func (a *app) runner(stages ...pipeline.Stage) *pipeline.Runner {
	r := pipeline.NewRunner(lklog.Base(), stages...)
	r.MetricsFile = a.cfg.Metrics.File
	return r
}

func (a *app) runStages(ctx context.Context, stages ...pipeline.Stage) error {
	_, err := a.runner(stages...).Run(ctx)
	return err
}

func (a *app) extractCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Decompress the gzip feed into plain XMLTV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := filepath.Join(a.cfg.Feed.PublicDir, "epg.xml.gz")
			if cmd.Flags().Changed("input") {
				src = input
			}
			dst := a.cfg.Input
			if cmd.Flags().Changed("output") {
				dst = output
			}
			return a.runStages(cmd.Context(), pipeline.Stage{Name: stageExtract, Run: func(ctx context.Context) error {
				_, err := feed.Extract(ctx, src, dst)
				return err
			}})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "gzip file (default <publicDir>/epg.xml.gz)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "extracted XMLTV file (default the configured input)")
	return cmd
}

func (a *app) filterCmd() *cobra.Command {
	var (
		input, output, strategy string
		channels                []string
		window                  time.Duration
		fuzzyMax                int
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Keep only the configured channels and their programmes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("input") {
				a.cfg.Input = input
			}
			if f.Changed("output") {
				a.cfg.Output = output
			}
			if f.Changed("match") {
				a.cfg.Match.Strategy = strategy
			}
			if f.Changed("channels") {
				a.cfg.Match.Channels = channels
			}
			if f.Changed("window") {
				a.cfg.Match.Window = window
			}
			if f.Changed("fuzzy-max") {
				a.cfg.Match.FuzzyMax = fuzzyMax
			}
			if err := a.validate(); err != nil {
				return err
			}
			return a.runStages(cmd.Context(), pipeline.Stage{Name: pipeline.StageFilter, Run: func(ctx context.Context) error {
				_, _, err := pipeline.Filter(ctx, &a.cfg)
				return err
			}})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "input guide path or URL")
	f.StringVarP(&output, "output", "o", "", "filtered guide path")
	f.StringVar(&strategy, "match", "", "matching strategy: exact, contains, regex, id, fuzzy")
	f.StringSliceVar(&channels, "channels", nil, "channel names, patterns or ids (default built-in list)")
	f.DurationVar(&window, "window", 0, "keep programmes starting within this duration (0 keeps all)")
	f.IntVar(&fuzzyMax, "fuzzy-max", 0, "maximum edit distance for fuzzy matching")
	return cmd
}

func (a *app) translateCmd() *cobra.Command {
	var (
		input, output, provider, backend, cachePath, mappings string
		noCache, untagged, channels                           bool
	)
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate programme text of the filtered guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			t := &a.cfg.Translate
			t.Enabled = true
			src := a.cfg.Output
			if f.Changed("input") {
				src = input
			}
			if f.Changed("output") {
				t.Output = output
			}
			if f.Changed("provider") {
				t.Provider = provider
			}
			if f.Changed("mappings") {
				t.Mappings = mappings
			}
			if f.Changed("cache-backend") {
				t.Cache.Backend = backend
			}
			if f.Changed("cache-path") {
				t.Cache.Path = cachePath
			}
			if noCache {
				t.Cache.Backend = cache.BackendMemory
			}
			if f.Changed("untagged") {
				t.Untagged = untagged
			}
			if f.Changed("channels") {
				t.Channels = channels
			}
			if err := a.validate(); err != nil {
				return err
			}
			return a.runStages(cmd.Context(), pipeline.Stage{Name: pipeline.StageTranslate, Run: func(ctx context.Context) error {
				tv, err := pipeline.ReadGuide(ctx, &a.cfg, src)
				if err != nil {
					return err
				}
				_, _, err = pipeline.Translate(ctx, &a.cfg, tv)
				return err
			}})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "guide to translate (default the filtered output)")
	f.StringVarP(&output, "output", "o", "", "translated guide path")
	f.StringVar(&provider, "provider", "", "remote provider: google, libretranslate, none")
	f.StringVar(&mappings, "mappings", "", "YAML phrase mapping file")
	f.StringVar(&backend, "cache-backend", "", "translation cache backend: json, sqlite, badger, redis, memory")
	f.StringVar(&cachePath, "cache-path", "", "translation cache file or directory")
	f.BoolVar(&noCache, "no-cache", false, "keep the translation cache in memory only")
	f.BoolVar(&untagged, "untagged", false, "also translate text without a lang attribute")
	f.BoolVar(&channels, "channels", false, "also translate channel display names")
	return cmd
}

func (a *app) tiledCmd() *cobra.Command {
	var input, output, format string
	cmd := &cobra.Command{
		Use:   "tiled",
		Short: "Write the flat dialog projection of the filtered guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Tiled.Enabled = true
			src := a.cfg.Output
			if cmd.Flags().Changed("input") {
				src = input
			}
			if cmd.Flags().Changed("output") {
				a.cfg.Tiled.Output = output
			}
			if cmd.Flags().Changed("format") {
				a.cfg.Tiled.Format = format
			}
			if err := a.validate(); err != nil {
				return err
			}
			return a.runStages(cmd.Context(), pipeline.Stage{Name: pipeline.StageTiled, Run: func(ctx context.Context) error {
				tv, err := pipeline.ReadGuide(ctx, &a.cfg, src)
				if err != nil {
					return err
				}
				return pipeline.Tiled(ctx, &a.cfg, tv)
			}})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "guide to project (default the filtered output)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "tiled guide path")
	cmd.Flags().StringVar(&format, "format", "", "projection format: tiled or dialog")
	return cmd
}

func (a *app) fetchCmd() *cobra.Command {
	var (
		noVPN          bool
		url, publicDir string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the upstream feed (through the VPN) and publish it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("url") {
				a.cfg.Feed.URL = url
			}
			if cmd.Flags().Changed("public-dir") {
				a.cfg.Feed.PublicDir = publicDir
			}
			if err := a.validate(); err != nil {
				return err
			}
			return a.runStages(cmd.Context(), pipeline.Stage{Name: pipeline.StageFetch, Run: func(ctx context.Context) error {
				_, err := pipeline.Fetch(ctx, &a.cfg, !noVPN)
				return err
			}})
		},
	}
	cmd.Flags().BoolVar(&noVPN, "no-vpn", false, "download directly without bringing up the tunnel")
	cmd.Flags().StringVar(&url, "url", "", "upstream feed URL")
	cmd.Flags().StringVar(&publicDir, "public-dir", "", "directory receiving epg.xml.gz and epg.xml")
	return cmd
}

type runFlags struct {
	fetch, noVPN, translate, tiled bool
	schedule                       string
}

func (a *app) applyRunFlags(cmd *cobra.Command, rf runFlags) {
	f := cmd.Flags()
	if f.Changed("translate") {
		a.cfg.Translate.Enabled = rf.translate
	}
	if f.Changed("tiled") {
		a.cfg.Tiled.Enabled = rf.tiled
	}
	if f.Changed("cron") {
		a.cfg.Schedule = rf.schedule
	}
}

func addRunFlags(cmd *cobra.Command, rf *runFlags) {
	f := cmd.Flags()
	f.BoolVar(&rf.translate, "translate", false, "run the translation stage")
	f.BoolVar(&rf.tiled, "tiled", false, "write the tiled projection")
}

func (a *app) runCmd() *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline once or on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.applyRunFlags(cmd, rf)
			if err := a.validate(); err != nil {
				return err
			}
			r := a.runner(pipeline.Plan(&a.cfg, pipeline.PlanOptions{Fetch: rf.fetch, UseVPN: !rf.noVPN})...)
			if a.cfg.Schedule == "" {
				_, err := r.Run(cmd.Context())
				return err
			}
			return pipeline.Schedule(cmd.Context(), a.cfg.Schedule, true, func(ctx context.Context) error {
				_, err := r.Run(ctx)
				return err
			}, lklog.WithComponent("scheduler"))
		},
	}
	addRunFlags(cmd, &rf)
	cmd.Flags().BoolVar(&rf.fetch, "fetch", false, "acquire the upstream feed first")
	cmd.Flags().BoolVar(&rf.noVPN, "no-vpn", false, "fetch without the tunnel")
	cmd.Flags().StringVar(&rf.schedule, "cron", "", `repeat on this cron schedule, e.g. "0 */6 * * *"`)
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	var (
		rf       runFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run filtering and translation whenever the input guide changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.applyRunFlags(cmd, rf)
			if err := a.validate(); err != nil {
				return err
			}
			r := a.runner(pipeline.Plan(&a.cfg, pipeline.PlanOptions{})...)
			logger := lklog.WithComponent("watch")
			if _, err := r.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("initial run failed, waiting for changes")
			}
			return pipeline.Watch(cmd.Context(), a.cfg.Input, debounce, func(ctx context.Context) error {
				_, err := r.Run(ctx)
				return err
			}, logger)
		},
	}
	addRunFlags(cmd, &rf)
	cmd.Flags().DurationVar(&debounce, "debounce", pipeline.DefaultDebounce, "quiet period before re-running")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var (
		listen, dir string
		rateLimit   int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish the generated guides over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := &a.cfg.Serve
			if cmd.Flags().Changed("listen") {
				s.Listen = listen
			}
			if cmd.Flags().Changed("dir") {
				s.Dir = dir
			}
			if cmd.Flags().Changed("rate-limit") {
				s.RateLimit = rateLimit
			}
			if err := a.validate(); err != nil {
				return err
			}
			return server.Run(cmd.Context(), server.Config{Listen: s.Listen, Dir: s.Dir, RateLimit: s.RateLimit}, lklog.Base())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address")
	cmd.Flags().StringVar(&dir, "dir", "", "directory to publish")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute per client IP (0 disables)")
	return cmd
}

func (a *app) openCache(ctx context.Context) (cache.Store, error) {
	c := a.cfg.Translate.Cache
	return cache.Open(ctx, cache.Config{Backend: c.Backend, Path: c.Path, RedisAddr: c.RedisAddr, Logger: lklog.WithComponent("cache")})
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the translation cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print the number of cached translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			n, err := store.Len(cmd.Context())
			if err != nil {
				return err
			}
			c := a.cfg.Translate.Cache
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "backend=%s path=%s entries=%d\n", c.Backend, c.Path, n)
			return err
		},
	}

	var full bool
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Run an integrity check on a sqlite translation cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !strings.EqualFold(a.cfg.Translate.Cache.Backend, cache.BackendSQLite) {
				return fmt.Errorf("cache verify needs the sqlite backend, configured %q", a.cfg.Translate.Cache.Backend)
			}
			store, err := cache.OpenSQLite(cmd.Context(), a.cfg.Translate.Cache.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			issues, err := store.Verify(cmd.Context(), full)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				for _, is := range issues {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), is)
				}
				return fmt.Errorf("translation cache integrity check found %d problem(s)", len(issues))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
	verify.Flags().BoolVar(&full, "full", false, "run integrity_check instead of quick_check")

	cmd.AddCommand(stats, verify)
	return cmd
}
