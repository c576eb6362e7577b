// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/anilwee/dialog/internal/cache"
	"github.com/anilwee/dialog/internal/epg"
	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/metrics"
	"github.com/anilwee/dialog/internal/resilience"
)

// Source reports where a translation came from.
type Source string

const (
	SourceMapping     Source = "mapping"
	SourceMappingFold Source = "mapping_fold"
	SourceCache       Source = "cache"
	SourceRemote      Source = "remote"
	// SourceSkipped marks text that is not worth translating (blank, links,
	// already in the target language).
	SourceSkipped Source = "skipped"
	// SourceOriginal marks text kept unchanged because nothing could
	// translate it.
	SourceOriginal Source = "original"
)

var skipPrefixes = []string{"http://", "https://", "www.", "#"}

// Options configures a Translator.
type Options struct {
	Source string
	Target string
	// Delay is the minimum spacing between consecutive remote calls.
	Delay time.Duration
	// Untagged also translates elements without a lang attribute.
	Untagged bool
	// Channels also translates channel display names.
	Channels bool
	Breaker  *resilience.CircuitBreaker
	Logger   zerolog.Logger
}

// Stats counts per-source outcomes of one Translator.
type Stats struct {
	Mapping  int
	Cache    int
	Remote   int
	Skipped  int
	Original int
	Failures int
}

func (s *Stats) add(src Source) {
	switch src {
	case SourceMapping, SourceMappingFold:
		s.Mapping++
	case SourceCache:
		s.Cache++
	case SourceRemote:
		s.Remote++
	case SourceSkipped:
		s.Skipped++
	case SourceOriginal:
		s.Original++
	}
}

// Translator resolves text through mapping, cache and provider in that order.
// It is not safe for concurrent use.
type Translator struct {
	mapping  *Mapping
	store    cache.Store
	provider Provider
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	opts     Options
	logger   zerolog.Logger
	stats    Stats
}

// New creates a Translator. mapping, store and provider may each be nil.
func New(mapping *Mapping, store cache.Store, provider Provider, opts Options) *Translator {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	if provider == nil {
		provider = None{}
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("translate_"+provider.Name(), 5, time.Minute,
			resilience.WithIgnore(func(err error) bool { return errors.Is(err, context.Canceled) }))
	}
	return &Translator{
		mapping:  mapping,
		store:    store,
		provider: provider,
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  breaker,
		opts:     opts,
		logger:   opts.Logger.With().Str(lklog.FieldComponent, "translate").Logger(),
	}
}

// Stats returns the counters accumulated so far.
func (t *Translator) Stats() Stats { return t.stats }

// Text translates a single text. Surrounding whitespace is preserved. On any
// failure the original text is returned with SourceOriginal.
func (t *Translator) Text(ctx context.Context, text string) (string, Source) {
	out, src := t.resolve(ctx, text)
	t.stats.add(src)
	metrics.RecordTranslation(string(src))
	return out, src
}

func (t *Translator) resolve(ctx context.Context, text string) (string, Source) {
	core := strings.TrimSpace(text)
	if core == "" {
		return text, SourceSkipped
	}
	lead := text[:strings.Index(text, core)]
	trail := text[len(lead)+len(core):]
	wrap := func(s string) string { return lead + s + trail }

	if v, ok := t.mapping.Exact(core); ok {
		return wrap(v), SourceMapping
	}
	if v, ok := t.mapping.Fold(core); ok {
		return wrap(v), SourceMappingFold
	}
	if t.skip(core) {
		return text, SourceSkipped
	}

	key := Key(t.opts.Source, t.opts.Target, core)
	if t.store != nil {
		v, ok, err := t.store.Get(ctx, key)
		if err != nil {
			t.logger.Warn().Err(err).Msg("translation cache lookup failed")
		} else if ok {
			return wrap(v), SourceCache
		}
	}

	if _, disabled := t.provider.(None); disabled {
		return text, SourceOriginal
	}
	translated, err := t.remote(ctx, core)
	if err != nil {
		t.stats.Failures++
		ev := t.logger.Warn()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			ev = t.logger.Debug()
		}
		ev.Err(err).Str(lklog.FieldProvider, t.provider.Name()).Str("text", core).Msg("translation failed, keeping original")
		return text, SourceOriginal
	}

	if t.store != nil {
		if err := t.store.Put(ctx, key, translated); err != nil {
			t.logger.Warn().Err(err).Msg("translation cache write failed")
		}
	}
	return wrap(translated), SourceRemote
}

func (t *Translator) remote(ctx context.Context, text string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var out string
	err := t.breaker.Execute(func() error {
		var err error
		out, err = t.provider.Translate(ctx, text, t.opts.Source, t.opts.Target)
		return err
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.RecordRemoteFailure(t.provider.Name())
	}
	if err == nil && strings.TrimSpace(out) == "" {
		return "", &ProviderError{Sentinel: ErrBadResponse, Provider: t.provider.Name(), Body: "empty translation"}
	}
	return strings.TrimSpace(out), err
}

func (t *Translator) skip(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	info := whatlanggo.Detect(text)
	return info.IsReliable() && info.Lang.Iso6391() == t.opts.Target
}

// wants reports whether an element tagged lang should be translated.
func (t *Translator) wants(lang string) bool {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return t.opts.Untagged
	}
	return strings.EqualFold(lang, t.opts.Source)
}

func (t *Translator) rewrite(ctx context.Context) epg.RewriteFunc {
	return func(_, lang, text string) (string, string, bool) {
		if !t.wants(lang) {
			return "", "", false
		}
		out, src := t.Text(ctx, text)
		if src == SourceSkipped || src == SourceOriginal {
			return "", "", false
		}
		return out, t.opts.Target, true
	}
}

// Document returns a copy of tv with source-language programme text (and,
// when enabled, channel display names) replaced by translations tagged with
// the target language. Elements that cannot be translated are left as they
// are. The returned Stats cover this call only.
func (t *Translator) Document(ctx context.Context, tv *epg.TV) (*epg.TV, Stats) {
	before := t.stats
	logger := lklog.WithContext(ctx, t.logger)

	out := &epg.TV{
		XMLName:    tv.XMLName,
		Attrs:      slices.Clone(tv.Attrs),
		Channels:   slices.Clone(tv.Channels),
		Programmes: slices.Clone(tv.Programmes),
	}
	fn := t.rewrite(ctx)

	if t.opts.Channels {
		for i := range out.Channels {
			c := &out.Channels[i]
			inner, changed, err := epg.RewriteElements(c.Inner, []string{"display-name"}, fn)
			if err != nil {
				logger.Warn().Err(err).Str(lklog.FieldChannelID, c.ID()).Msg("channel left untranslated")
				continue
			}
			if changed {
				if err := c.SetInner(inner); err != nil {
					logger.Warn().Err(err).Str(lklog.FieldChannelID, c.ID()).Msg("channel left untranslated")
				}
			}
		}
	}

	for i := range out.Programmes {
		if ctx.Err() != nil {
			logger.Warn().Err(ctx.Err()).Int("remaining", len(out.Programmes)-i).Msg("translation interrupted")
			break
		}
		p := &out.Programmes[i]
		inner, changed, err := epg.RewriteText(p.Inner, fn)
		if err != nil {
			logger.Warn().Err(err).Str(lklog.FieldChannel, p.ChannelRef()).Str("start", p.Start()).Msg("programme left untranslated")
			continue
		}
		if changed {
			if err := p.SetInner(inner); err != nil {
				logger.Warn().Err(err).Str(lklog.FieldChannel, p.ChannelRef()).Msg("programme left untranslated")
			}
		}
	}

	delta := Stats{
		Mapping:  t.stats.Mapping - before.Mapping,
		Cache:    t.stats.Cache - before.Cache,
		Remote:   t.stats.Remote - before.Remote,
		Skipped:  t.stats.Skipped - before.Skipped,
		Original: t.stats.Original - before.Original,
		Failures: t.stats.Failures - before.Failures,
	}
	logger.Info().
		Int("mapping", delta.Mapping).
		Int("cache", delta.Cache).
		Int("remote", delta.Remote).
		Int("skipped", delta.Skipped).
		Int("original", delta.Original).
		Int("failures", delta.Failures).
		Msg("translation pass complete")
	return out, delta
}
