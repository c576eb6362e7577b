// SPDX-License-Identifier: MIT

package epg

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Strategy names accepted by NewMatcher.
const (
	StrategyExact    = "exact"
	StrategyContains = "contains"
	StrategyRegex    = "regex"
	StrategyID       = "id"
	StrategyFuzzy    = "fuzzy"
)

// Strategies lists the valid matching strategies.
var Strategies = []string{StrategyExact, StrategyContains, StrategyRegex, StrategyID, StrategyFuzzy}

// ErrUnknownStrategy is returned by NewMatcher for an unsupported strategy.
var ErrUnknownStrategy = errors.New("epg: unknown match strategy")

// DefaultChannelNames is the Sri Lankan channel allow-list by display name.
var DefaultChannelNames = []string{
	"ADA DERANA 24", "ART Television", "Buddhist TV", "Channel C", "Channel One",
	"Citi Hitz", "Damsathara TV", "God TV/Swarga TV", "Haritha TV", "Hi TV",
	"Hiru TV", "ITN", "Jaya TV", "Monara TV", "Nethra TV", "Pragna TV",
	"Rangiri Sri Lanka", "Ridee TV", "Rupavahini", "Shakthi TV", "Shraddha TV",
	"Sirasa TV", "Siyatha TV", "Supreme TV", "Swarnawahini Live", "Swarnawahini",
	"TV Derana", "TV Didula", "TV1 Sri Lanka", "Vasantham TV",
}

// DefaultChannelPatterns covers the same channels with spacing and variant
// tolerance ("ADA DERANA" and "ADA DERANA 24" share one pattern).
var DefaultChannelPatterns = []string{
	// news
	`(?i)\bada\s*derana(?:\s*24)?\b`,
	`(?i)\bhiru\s*tv\b`,
	`(?i)\bsirasa\s*tv\b`,
	`(?i)\bswarnawahini(?:\s*live)?\b`,
	`(?i)\btv\s*derana\b`,
	`(?i)\bitn\b`,
	`(?i)\brupavahini\b`,
	`(?i)\bjaya\s*tv\b`,
	// entertainment
	`(?i)\bart\s*television\b`,
	`(?i)\bchannel\s*c\b`,
	`(?i)\bchannel\s*one\b`,
	`(?i)\bhi\s*tv\b`,
	`(?i)\bshakthi\s*tv\b`,
	`(?i)\btv1\s*sri\s*lanka\b`,
	`(?i)\bvasantham\s*tv\b`,
	// religious
	`(?i)\bbuddhist\s*tv\b`,
	`(?i)\bgod\s*tv\s*/\s*swarga\s*tv\b`,
	`(?i)\bshraddha\s*tv\b`,
	// sports
	`(?i)\bthepapare\s*\d\b`,
	`(?i)\bciti\s*hitz\b`,
	// regional
	`(?i)\bdamsathara\s*tv\b`,
	`(?i)\bharitha\s*tv\b`,
	`(?i)\bmonara\s*tv\b`,
	`(?i)\bnethra\s*tv\b`,
	`(?i)\bpragna\s*tv\b`,
	`(?i)\brangiri\s*sri\s*lanka\b`,
	`(?i)\bridee\s*tv\b`,
	`(?i)\bsupreme\s*tv\b`,
	`(?i)\bsiyatha\s*tv\b`,
	`(?i)\btv\s*didula\b`,
}

// Matcher decides whether a channel belongs to the allow-list.
type Matcher interface {
	Match(c Channel) bool
}

// MatchFunc adapts a function to Matcher.
type MatchFunc func(c Channel) bool

// Match implements Matcher.
func (f MatchFunc) Match(c Channel) bool { return f(c) }

type exactMatcher struct{ names map[string]struct{} }

// NewExactMatcher matches when any display name equals an allow-list entry
// after trimming surrounding whitespace.
func NewExactMatcher(names []string) Matcher {
	m := exactMatcher{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			m.names[n] = struct{}{}
		}
	}
	return m
}

func (m exactMatcher) Match(c Channel) bool {
	for _, n := range c.Names() {
		if _, ok := m.names[n]; ok {
			return true
		}
	}
	return false
}

type containsMatcher struct{ tokens []string }

// NewContainsMatcher matches when a display name contains an allow-list token,
// compared case-insensitively on NFC-normalized text.
func NewContainsMatcher(tokens []string) Matcher {
	m := containsMatcher{}
	for _, t := range tokens {
		if t = fold(t); t != "" {
			m.tokens = append(m.tokens, t)
		}
	}
	return m
}

func (m containsMatcher) Match(c Channel) bool {
	for _, n := range c.Names() {
		n = fold(n)
		for _, t := range m.tokens {
			if strings.Contains(n, t) {
				return true
			}
		}
	}
	return false
}

type regexMatcher struct{ patterns []*regexp.Regexp }

// NewRegexMatcher compiles the patterns; any display name matching any
// pattern (unanchored search) selects the channel.
func NewRegexMatcher(patterns []string) (Matcher, error) {
	m := regexMatcher{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m regexMatcher) Match(c Channel) bool {
	for _, n := range c.Names() {
		for _, re := range m.patterns {
			if re.MatchString(n) {
				return true
			}
		}
	}
	return false
}

type idMatcher struct{ ids map[string]struct{} }

// NewIDMatcher matches on the channel identifier instead of the display name.
func NewIDMatcher(ids []string) Matcher {
	m := idMatcher{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			m.ids[id] = struct{}{}
		}
	}
	return m
}

func (m idMatcher) Match(c Channel) bool {
	_, ok := m.ids[c.ID()]
	return ok
}

type fuzzyMatcher struct {
	keys    []string
	maxDist int
}

// NewFuzzyMatcher matches when a normalized display name is within maxDist
// edits of a normalized allow-list entry.
func NewFuzzyMatcher(names []string, maxDist int) Matcher {
	m := fuzzyMatcher{maxDist: max(maxDist, 0)}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		k := NameKey(n)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		m.keys = append(m.keys, k)
	}
	return m
}

func (m fuzzyMatcher) Match(c Channel) bool {
	for _, n := range c.Names() {
		if _, ok := FindBest(n, m.keys, m.maxDist); ok {
			return true
		}
	}
	return false
}

// NewMatcher builds a matcher for strategy. An empty list selects the
// built-in Sri Lankan defaults for name-based strategies.
func NewMatcher(strategy string, list []string, fuzzyMax int) (Matcher, error) {
	strategy = strings.ToLower(strings.TrimSpace(strategy))
	names := list
	if len(names) == 0 {
		names = DefaultChannelNames
	}
	switch strategy {
	case StrategyExact:
		return NewExactMatcher(names), nil
	case StrategyContains:
		return NewContainsMatcher(names), nil
	case StrategyRegex:
		patterns := list
		if len(patterns) == 0 {
			patterns = DefaultChannelPatterns
		}
		return NewRegexMatcher(patterns)
	case StrategyID:
		// the dialog feed uses display names as channel ids
		return NewIDMatcher(names), nil
	case StrategyFuzzy:
		return NewFuzzyMatcher(names, fuzzyMax), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}
