package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("local cache: key not found")

// Config holds LocalCache configuration.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	value    string
	expireAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// LocalCache is an in-process KV store with TTL support. It serves
// single-node deployments where Redis is not configured.
type LocalCache struct {
	mu    sync.RWMutex
	items map[string]*entry

	stopGC chan struct{}
	once   sync.Once
}

func NewCache(cfg Config) (*LocalCache, error) {
	c := &LocalCache{
		items:  make(map[string]*entry),
		stopGC: make(chan struct{}),
	}
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go c.gcLoop(interval)
	return c, nil
}

func (c *LocalCache) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.gc()
		case <-c.stopGC:
			return
		}
	}
}

func (c *LocalCache) gc() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
}

// Close stops the GC goroutine.
func (c *LocalCache) Close() error {
	c.once.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	e := &entry{value: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	return true, nil
}

func (c *LocalCache) SetNX(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok && !e.expired(now) {
		return false, nil
	}
	e := &entry{value: value}
	if ttl > 0 {
		e.expireAt = now.Add(ttl)
	}
	c.items[key] = e
	return true, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || e.expired(time.Now()) {
		return ErrNotFound
	}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	} else {
		e.expireAt = time.Time{}
	}
	return nil
}
