package gtfsimport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"tidbyt.dev/gtfsimport/model"
	"tidbyt.dev/gtfsimport/storage"
)

const (
	DefaultViewCacheSize = 16
	DefaultViewCacheTTL  = 5 * time.Minute
)

const (
	routesKey     = "routes"
	tripCountsKey = "trip_counts"
)

// Read side of the stored data. Results are cached until the next
// Purge() or until they expire.
//
// Cached slices are shared between callers and must not be
// modified.
type Views struct {
	storage storage.Storage
	join    model.JoinMode
	cache   gcache.Cache

	// Bumped on every purge. Results computed under an older
	// generation are not cached.
	mu         sync.Mutex
	generation uint64
}

// Creates Views on top of s. With cacheSize <= 0, nothing is
// cached. With ttl <= 0, cached results live until purged.
func NewViews(s storage.Storage, join model.JoinMode, cacheSize int, ttl time.Duration) *Views {
	v := &Views{
		storage: s,
		join:    join,
	}
	if cacheSize > 0 {
		b := gcache.New(cacheSize).LRU()
		if ttl > 0 {
			b = b.Expiration(ttl)
		}
		v.cache = b.Build()
	}
	return v
}

func (v *Views) JoinMode() model.JoinMode {
	return v.join
}

func (v *Views) Routes(ctx context.Context) ([]*model.Route, error) {
	val, err := v.cached(routesKey, func() (any, error) {
		return v.storage.AllRoutes(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	return val.([]*model.Route), nil
}

func (v *Views) TripCounts(ctx context.Context) ([]*model.HeadsignCount, error) {
	val, err := v.cached(tripCountsKey, func() (any, error) {
		return v.storage.TripCountsByHeadsign(ctx, v.join)
	})
	if err != nil {
		return nil, fmt.Errorf("counting trips by headsign: %w", err)
	}
	return val.([]*model.HeadsignCount), nil
}

func (v *Views) Counts(ctx context.Context) (model.Counts, error) {
	return v.storage.Counts(ctx)
}

// Drops all cached results.
func (v *Views) Purge() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.generation++
	if v.cache != nil {
		v.cache.Purge()
	}
}

func (v *Views) cached(key string, load func() (any, error)) (any, error) {
	if v.cache == nil {
		return load()
	}

	val, err := v.cache.Get(key)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, gcache.KeyNotFoundError) {
		return nil, err
	}

	v.mu.Lock()
	gen := v.generation
	v.mu.Unlock()

	val, err = load()
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	if v.generation == gen {
		v.cache.Set(key, val)
	}
	v.mu.Unlock()

	return val, nil
}
