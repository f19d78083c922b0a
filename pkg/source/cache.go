package source

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/patrickmn/go-cache"
)

const placesCacheKey = "places"

// CachedSource keeps the last successful fetch of an upstream Source for ttl.
// Failed fetches are not cached so the next call retries upstream.
type CachedSource struct {
	upstream Source
	cache    *cache.Cache
	mu       sync.Mutex
}

// NewCachedSource wraps upstream with a ttl cache
func NewCachedSource(upstream Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		upstream: upstream,
		cache:    cache.New(ttl, 2*ttl),
	}
}

// FetchPlaces returns the cached list when fresh, otherwise fetches upstream
func (c *CachedSource) FetchPlaces(ctx context.Context) ([]models.Place, error) {
	if cached, ok := c.lookup(); ok {
		return cached, nil
	}

	// One upstream fetch at a time; late arrivals reuse its result
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.lookup(); ok {
		return cached, nil
	}

	fetched, err := c.upstream.FetchPlaces(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(placesCacheKey, fetched)
	return clonePlaces(fetched), nil
}

// Invalidate drops the cached list so the next FetchPlaces goes upstream
func (c *CachedSource) Invalidate() {
	c.cache.Delete(placesCacheKey)
	log.Println("Place cache invalidated")
}

func (c *CachedSource) lookup() ([]models.Place, bool) {
	v, ok := c.cache.Get(placesCacheKey)
	if !ok {
		return nil, false
	}
	cached, ok := v.([]models.Place)
	if !ok {
		return nil, false
	}
	return clonePlaces(cached), true
}

func clonePlaces(in []models.Place) []models.Place {
	out := make([]models.Place, len(in))
	copy(out, in)
	return out
}
