// Package cache keeps compiled token indexes alive across
// generations. Index construction walks every vocabulary token from
// every automaton state, so it is orders of magnitude more expensive
// than a single decoding step and must never run twice for the same
// constraint and vocabulary.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/cpfiffer/outlines/envconfig"
	"github.com/cpfiffer/outlines/grammar"
	"github.com/cpfiffer/outlines/index"
	"github.com/cpfiffer/outlines/logutil"
)

// Key identifies one compiled index: a constraint paired with the
// vocabulary it was built against. The same constraint compiled for
// two tokenizers yields two distinct entries.
type Key struct {
	Grammar    uint64
	Vocabulary uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%016x-%016x", k.Grammar, k.Vocabulary)
}

// Cache is an in-memory LRU over compiled indexes with optional disk
// persistence. Concurrent requests for the same key share one build.
type Cache struct {
	indexes *lru.Cache[Key, *index.Index]
	group   singleflight.Group
	dir     string
	logger  *slog.Logger
}

// New sizes the cache from OUTLINES_CACHE_ENTRIES and persists built
// indexes under OUTLINES_INDEX_DIR when that is set.
func New() (*Cache, error) {
	entries := int(envconfig.CacheEntries())
	if entries <= 0 {
		entries = 1
	}
	indexes, err := lru.New[Key, *index.Index](entries)
	if err != nil {
		return nil, err
	}

	dir := envconfig.IndexDir()
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create index dir: %w", err)
		}
	}

	return &Cache{
		indexes: indexes,
		dir:     dir,
		logger:  logutil.NewLogger(os.Stderr),
	}, nil
}

// GetOrCompile returns the index for key, building it with compile on
// a miss. Callers racing on the same key block on a single build and
// share its result.
func (c *Cache) GetOrCompile(key Key, compile func() (*grammar.Automaton, *index.Index, error)) (*index.Index, error) {
	if x, ok := c.indexes.Get(key); ok {
		return x, nil
	}

	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		// another goroutine may have finished while we queued
		if x, ok := c.indexes.Get(key); ok {
			return x, nil
		}

		if x := c.load(key); x != nil {
			c.indexes.Add(key, x)
			return x, nil
		}

		start := time.Now()
		a, x, err := compile()
		if err != nil {
			return nil, err
		}
		c.logger.Debug("compiled index", "key", key, "states", x.NumStates(), "elapsed", time.Since(start))

		c.save(key, a, x)
		c.indexes.Add(key, x)
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared in-flight index build", "key", key)
	}
	return v.(*index.Index), nil
}

// Len reports how many indexes are resident in memory.
func (c *Cache) Len() int { return c.indexes.Len() }

// Clear drops all in-memory entries. Persisted files are kept.
func (c *Cache) Clear() { c.indexes.Purge() }

func (c *Cache) path(key Key) string {
	return filepath.Join(c.dir, key.String()+".idx")
}

func (c *Cache) load(key Key) *index.Index {
	if c.dir == "" {
		return nil
	}
	_, x, err := index.Load(c.path(key), key.Grammar, key.Vocabulary)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("discarding persisted index", "key", key, "error", err)
		}
		return nil
	}
	c.logger.Debug("loaded persisted index", "key", key, "states", x.NumStates())
	return x
}

func (c *Cache) save(key Key, a *grammar.Automaton, x *index.Index) {
	if c.dir == "" {
		return
	}
	if err := index.Save(c.path(key), key.Grammar, key.Vocabulary, a, x); err != nil {
		c.logger.Warn("could not persist index", "key", key, "error", err)
	}
}
