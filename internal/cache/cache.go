// SPDX-License-Identifier: MIT

// Package cache provides the persistent key/value stores behind translation
// caching. Stores are strictly additive: Put never replaces an existing key
// and nothing expires.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ErrUnknownBackend is returned by Open for an unsupported backend.
var ErrUnknownBackend = errors.New("cache: unknown backend")

// Store is a string key/value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value unless key already exists.
	Put(ctx context.Context, key, value string) error
	// Len reports the number of stored entries.
	Len(ctx context.Context) (int, error)
	// Stats returns counters for this process.
	Stats() Stats
	// Close flushes pending state and releases resources.
	Close() error
}

// Stats holds per-process store counters.
type Stats struct {
	Hits   int64
	Misses int64
	Puts   int64
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Logger        zerolog.Logger
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendJSON, "":
		return OpenJSON(cfg.Path, cfg.Logger)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case BackendBadger:
		return OpenBadger(cfg.Path)
	case BackendRedis:
		return OpenRedis(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, cfg.Logger)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// counters is embedded by every backend.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	puts   atomic.Int64
}

func (c *counters) hit(ok bool) {
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// Stats implements Store.
func (c *counters) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Puts: c.puts.Load()}
}
