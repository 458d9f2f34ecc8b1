package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryProvider is an in-process Provider with per-key expiry, backed by ttlcache.
// Expired entries are swept by a background loop until Close.
type MemoryProvider struct {
	items *ttlcache.Cache[string, []byte]
	once  sync.Once
}

// NewMemoryProvider builds a MemoryProvider and starts its expiry loop.
func NewMemoryProvider() *MemoryProvider {
	items := ttlcache.New[string, []byte](
		// Reads must not extend the lifetime of the cached directory.
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &MemoryProvider{items: items}
}

// Get returns a copy of the stored bytes, or ErrCacheMiss when absent or expired.
func (p *MemoryProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item := p.items.Get(key)
	if item == nil {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.Value()...), nil
}

// Set stores value. A non-positive ttl keeps the entry until it is deleted.
func (p *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	p.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Del removes key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.items.Delete(key)
	return nil
}

// Close stops the expiry loop and drops every entry.
func (p *MemoryProvider) Close() error {
	p.once.Do(func() {
		p.items.Stop()
		p.items.DeleteAll()
	})
	return nil
}
