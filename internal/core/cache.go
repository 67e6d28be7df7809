package core

import (
	"context"
	"encoding/json"
	"time"

	freecache "github.com/coocood/freecache"
	gocache "github.com/eko/gocache/lib/v4/cache"
	libstore "github.com/eko/gocache/lib/v4/store"
	gocachefreecache "github.com/eko/gocache/store/freecache/v4"
	"github.com/golang/snappy"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// browseCache holds recent browse pages. A negative size disables it,
// so a nil inner cache is valid and turns get/put into no-ops.
type browseCache struct {
	cache    gocache.CacheInterface[[]byte]
	ctx      context.Context
	ttl      time.Duration
	compress bool
}

func newBrowseCache(size int, ttl time.Duration, compress bool) *browseCache {
	c := &browseCache{ctx: context.Background(), ttl: ttl, compress: compress}
	if size > 0 {
		store := gocachefreecache.NewFreecache(freecache.NewCache(size))
		c.cache = gocache.New[[]byte](store)
	}
	return c
}

func (c *browseCache) get(key string) (dlna.BrowseResult, bool) {
	if c.cache == nil {
		return dlna.BrowseResult{}, false
	}
	value, err := c.cache.Get(c.ctx, key)
	if err != nil {
		return dlna.BrowseResult{}, false
	}
	if c.compress {
		value, err = snappy.Decode(nil, value)
		if err != nil {
			return dlna.BrowseResult{}, false
		}
	}
	var result dlna.BrowseResult
	if err := json.Unmarshal(value, &result); err != nil {
		return dlna.BrowseResult{}, false
	}
	return result, true
}

func (c *browseCache) put(key string, result dlna.BrowseResult) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if c.compress {
		payload = snappy.Encode(nil, payload)
	}
	_ = c.cache.Set(c.ctx, key, payload, libstore.WithExpiration(c.ttl))
}
