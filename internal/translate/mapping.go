// SPDX-License-Identifier: MIT

// Package translate rewrites programme text into another language using a
// static mapping, a persistent cache and a remote translation provider.
package translate

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Mapping is a static source→target phrase table.
type Mapping struct {
	exact map[string]string
	lower map[string]string
}

// NewMapping indexes entries. Keys are matched after trimming. When several
// keys fold to the same lowercase form, an all-lowercase key wins, otherwise
// the first in sort order.
func NewMapping(entries map[string]string) *Mapping {
	m := &Mapping{
		exact: make(map[string]string, len(entries)),
		lower: make(map[string]string, len(entries)),
	}
	for k, v := range entries {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		m.exact[k] = v
	}
	for _, k := range slices.Sorted(maps.Keys(m.exact)) {
		lk := strings.ToLower(k)
		if _, taken := m.lower[lk]; taken && k != lk {
			continue
		}
		m.lower[lk] = m.exact[k]
	}
	return m
}

// LoadMapping reads a YAML mapping of source text to translated text. A
// missing file is not an error: the mapping is optional and comes back empty.
func LoadMapping(path string, logger zerolog.Logger) (*Mapping, error) {
	// #nosec G304 -- mapping path is provided by the operator
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("path", path).Msg("translation mapping not found, continuing without it")
		return NewMapping(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	entries := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			entries[k] = val
		case nil:
			logger.Debug().Str("key", k).Msg("mapping entry without value skipped")
		default:
			entries[k] = fmt.Sprint(val)
		}
	}
	m := NewMapping(entries)
	logger.Debug().Str("path", path).Int("entries", m.Len()).Msg("translation mapping loaded")
	return m, nil
}

// Exact returns the mapping for text as written.
func (m *Mapping) Exact(text string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.exact[strings.TrimSpace(text)]
	return v, ok
}

// Fold returns the mapping for text ignoring case.
func (m *Mapping) Fold(text string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.lower[strings.ToLower(strings.TrimSpace(text))]
	return v, ok
}

// Len reports the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.exact)
}
