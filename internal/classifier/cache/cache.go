// Package cache wraps a Classifier with a Badger-backed result cache keyed on
// the series tokens + the full filename, so a re-scanned or re-seeded
// release with an identical name skips the (comparatively expensive)
// external classifier call (SPEC_FULL.md DOMAIN STACK D.1).
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/chim331u/mediabutler/internal/classifier"
)

// Cached wraps a Classifier with a Badger KV cache.
type Cached struct {
	db    *badger.DB
	inner classifier.Classifier
	ttl   time.Duration
}

// Open opens (or creates) a Badger database at dir and wraps inner with a
// cache using the given TTL for entries.
func Open(dir string, inner classifier.Classifier, ttl time.Duration) (*Cached, error) {
	opts := badger.DefaultOptions(dir)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cached{db: db, inner: inner, ttl: ttl}, nil
}

// OpenInMemory opens an in-memory-only Badger database, for tests.
func OpenInMemory(inner classifier.Classifier, ttl time.Duration) (*Cached, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cached{db: db, inner: inner, ttl: ttl}, nil
}

func (c *Cached) Close() error { return c.db.Close() }

func cacheKey(tokens []string, filename string) []byte {
	return []byte("classify:" + strings.Join(tokens, "\x1f") + ":" + filename)
}

// Classify returns a cached result if present and unexpired; otherwise it
// calls through to inner and stores the result.
func (c *Cached) Classify(ctx context.Context, tokens []string, filename string) (classifier.Result, error) {
	key := cacheKey(tokens, filename)

	var cached classifier.Result
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if jsonErr := json.Unmarshal(val, &cached); jsonErr != nil {
				return jsonErr
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return classifier.Result{}, err
	}
	if found {
		return cached, nil
	}

	res, err := c.inner.Classify(ctx, tokens, filename)
	if err != nil {
		return classifier.Result{}, err
	}

	data, err := json.Marshal(res)
	if err == nil {
		_ = c.db.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry(key, data)
			if c.ttl > 0 {
				entry = entry.WithTTL(c.ttl)
			}
			return txn.SetEntry(entry)
		})
	}
	return res, nil
}
