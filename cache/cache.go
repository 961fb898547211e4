// Package cache memoizes fetch results for the lifetime of an analysis
// session, keyed by a canonical encoding of the call and its arguments.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an in-memory result cache. It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, any]
}

// New creates a Cache holding at most size results.
func New(size int) (*Cache, error) {
	if size < 1 {
		size = 1
	}
	entries, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Key builds the canonical key for a call to fn with args. Arguments are
// JSON-encoded and hashed, so secrets in args never appear in the key.
func Key(fn string, args ...any) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("cache: encode key for %s: %w", fn, err)
	}
	sum := sha256.Sum256(encoded)
	return fn + ":" + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached value for key.
func (c *Cache) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

// Put stores value under key.
func (c *Cache) Put(key string, value any) {
	c.entries.Add(key, value)
}

// Invalidate drops every cached result.
func (c *Cache) Invalidate() {
	c.entries.Purge()
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Memoize returns the cached result of fn for key, calling fn and storing its
// result on a miss. Errors are never cached.
func Memoize[T any](c *Cache, key string, fn func() (T, error)) (T, bool, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, true, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, false, err
	}
	c.Put(key, v)
	return v, false, nil
}
