// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "tr:"

// BadgerStore persists entries in an embedded Badger directory.
type BadgerStore struct {
	counters
	db *badger.DB
}

// OpenBadger opens the Badger directory at path.
func OpenBadger(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("cache: badger backend requires a path")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("cache: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.hit(false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: badger get: %w", err)
	}
	s.hit(true)
	return v, true, nil
}

func (s *BadgerStore) Put(_ context.Context, key, value string) error {
	k := []byte(badgerPrefix + key)
	added := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		return txn.Set(k, []byte(value))
	})
	if err != nil {
		return fmt.Errorf("cache: badger put: %w", err)
	}
	if added {
		s.puts.Add(1)
	}
	return nil
}

func (s *BadgerStore) Len(ctx context.Context) (int, error) {
	prefix := []byte(badgerPrefix)
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerStore) Close() error { return s.db.Close() }
