package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryItem stores a JSON-encoded value with expiration.
type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryCache implements Service in process with LRU eviction. Expired items
// are dropped lazily on access.
type MemoryCache struct {
	items      *lru.Cache[string, memoryItem]
	lockMu     sync.Mutex
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:    1000,
		DefaultTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}

	items, _ := lru.New[string, memoryItem](cfg.MaxSize)
	return &MemoryCache{
		items:      items,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	mc.items.Add(key, memoryItem{data: data, expireAt: mc.expiry(expiration)})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	item, ok := mc.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	if item.expired(mc.now()) {
		mc.items.Remove(key)
		return ErrCacheMiss
	}
	return decode(item.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		mc.items.Remove(key)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.lockMu.Lock()
	defer mc.lockMu.Unlock()

	if item, ok := mc.items.Peek(key); ok && !item.expired(mc.now()) {
		return false, nil
	}
	mc.items.Add(key, memoryItem{data: []byte("locked"), expireAt: mc.expiry(ttl)})
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len returns the number of stored items, expired ones included.
func (mc *MemoryCache) Len() int { return mc.items.Len() }

// Close drops every item.
func (mc *MemoryCache) Close() error {
	mc.items.Purge()
	return nil
}

func (mc *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	return mc.now().Add(ttl)
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *[]byte:
		*d = append([]byte(nil), data...)
		return nil
	case *string:
		*d = string(data)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
