package services

import (
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/goccy/go-json"
	"github.com/karlseguin/ccache/v3"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/metrics"
	"github.com/bete/backend/internal/models"
)

// PropertyCache is a two-level read-through cache for single properties:
// an in-process LRU in front of an optional shared memcached.
type PropertyCache struct {
	local  *ccache.Cache[*models.Property]
	remote *memcache.Client
	ttl    time.Duration
}

func NewPropertyCache(maxSize int64, ttl time.Duration, memcachedAddrs []string) *PropertyCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &PropertyCache{
		local: ccache.New(ccache.Configure[*models.Property]().MaxSize(maxSize)),
		ttl:   ttl,
	}
	if len(memcachedAddrs) > 0 {
		c.remote = memcache.New(memcachedAddrs...)
		logging.Info().Strs("addrs", memcachedAddrs).Msg("property cache using memcached")
	}
	return c
}

func cacheKey(id string) string {
	return "property:" + id
}

// Get returns a copy of the cached property.
func (c *PropertyCache) Get(id string) (*models.Property, bool) {
	if c == nil {
		return nil, false
	}
	key := cacheKey(id)
	if item := c.local.Get(key); item != nil && !item.Expired() {
		metrics.CacheRequests.WithLabelValues("local", "hit").Inc()
		p := *item.Value()
		return &p, true
	}
	metrics.CacheRequests.WithLabelValues("local", "miss").Inc()

	if c.remote == nil {
		return nil, false
	}
	it, err := c.remote.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			logging.Warn().Err(err).Str("key", key).Msg("memcached get failed")
		}
		metrics.CacheRequests.WithLabelValues("memcached", "miss").Inc()
		return nil, false
	}
	var p models.Property
	if err := json.Unmarshal(it.Value, &p); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("memcached value unreadable")
		return nil, false
	}
	metrics.CacheRequests.WithLabelValues("memcached", "hit").Inc()
	c.local.Set(key, &p, c.ttl)
	out := p
	return &out, true
}

func (c *PropertyCache) Set(p *models.Property) {
	if c == nil || p == nil {
		return
	}
	key := cacheKey(p.ID)
	cp := *p
	c.local.Set(key, &cp, c.ttl)

	if c.remote == nil {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.remote.Set(&memcache.Item{Key: key, Value: b, Expiration: int32(c.ttl / time.Second)}); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("memcached set failed")
	}
}

func (c *PropertyCache) Invalidate(id string) {
	if c == nil {
		return
	}
	key := cacheKey(id)
	c.local.Delete(key)
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		logging.Warn().Err(err).Str("key", key).Msg("memcached delete failed")
	}
}

// Stop halts the local cache's background worker.
func (c *PropertyCache) Stop() {
	if c != nil {
		c.local.Stop()
	}
}
