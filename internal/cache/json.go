// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// JSONStore keeps entries in memory and persists them as a single JSON object.
// The file is read once by OpenJSON and written once by Close, atomically,
// only when something was added.
type JSONStore struct {
	*Memory
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	dirty  bool
	closed bool
}

// OpenJSON loads path if it exists. A missing file starts an empty cache.
func OpenJSON(path string, logger zerolog.Logger) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("cache: json backend requires a path")
	}
	s := &JSONStore{Memory: NewMemory(), path: path, logger: logger}

	// #nosec G304 -- cache path is provided by the operator
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug().Str("path", path).Msg("translation cache not found, starting empty")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("parse cache %s: %w", path, err)
		}
	}
	if s.entries == nil {
		s.entries = make(map[string]string)
	}
	logger.Debug().Str("path", path).Int("entries", len(s.entries)).Msg("translation cache loaded")
	return s, nil
}

func (s *JSONStore) Put(ctx context.Context, key, value string) error {
	before := s.puts.Load()
	if err := s.Memory.Put(ctx, key, value); err != nil {
		return err
	}
	if s.puts.Load() != before {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
	return nil
}

// Flush writes the cache file if there are unsaved entries.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

// Close flushes once; later calls are no-ops.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Flush()
}
