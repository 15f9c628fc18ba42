package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tidbyt.dev/gtfsimport/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	TimeNow func() time.Time

	mu     sync.RWMutex
	routes []model.Route
	trips  []model.Trip

	// Holds a token while a batch is open.
	writer chan struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		TimeNow: time.Now,
		routes:  []model.Route{},
		trips:   []model.Trip{},
		writer:  make(chan struct{}, 1),
	}
}

func (s *MemoryStorage) EnsureSchema(ctx context.Context) error {
	return nil
}

// Only one batch can be open at a time. Begin() blocks until the
// previous batch is committed or rolled back, or ctx is done.
func (s *MemoryStorage) Begin(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("beginning batch", err)
	}
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, storeErr("beginning batch", ctx.Err())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return &memoryBatch{
		s:      s,
		routes: append([]model.Route{}, s.routes...),
		trips:  append([]model.Trip{}, s.trips...),
	}, nil
}

func (s *MemoryStorage) AllRoutes(ctx context.Context) ([]*model.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]*model.Route, 0, len(s.routes))
	for i := range s.routes {
		r := s.routes[i]
		routes = append(routes, &r)
	}
	return routes, nil
}

func (s *MemoryStorage) AllTrips(ctx context.Context) ([]*model.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trips := make([]*model.Trip, 0, len(s.trips))
	for i := range s.trips {
		t := s.trips[i]
		trips = append(trips, &t)
	}
	return trips, nil
}

func (s *MemoryStorage) Counts(ctx context.Context) (model.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.Counts{Routes: len(s.routes), Trips: len(s.trips)}, nil
}

func (s *MemoryStorage) TripCountsByHeadsign(ctx context.Context, join model.JoinMode) ([]*model.HeadsignCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch join {
	case model.JoinRoute:
		return s.countsByRoute(), nil
	case model.JoinLegacy:
		return s.countsLegacy(), nil
	}
	return nil, fmt.Errorf("unknown join mode %q", join)
}

type routeIdentity struct {
	ID, ShortName, LongName string
}

func (s *MemoryStorage) countsByRoute() []*model.HeadsignCount {
	// Distinct route identities by route_id
	variants := map[string][]routeIdentity{}
	seen := map[routeIdentity]bool{}
	for _, r := range s.routes {
		ident := routeIdentity{r.ID, r.ShortName, r.LongName}
		if seen[ident] {
			continue
		}
		seen[ident] = true
		variants[r.ID] = append(variants[r.ID], ident)
	}

	type key struct {
		route    routeIdentity
		headsign string
	}
	counts := map[key]int{}
	for _, t := range s.trips {
		for _, ident := range variants[t.RouteID] {
			counts[key{ident, t.Headsign}]++
		}
	}

	result := []*model.HeadsignCount{}
	for k, n := range counts {
		result = append(result, &model.HeadsignCount{
			RouteID:        k.route.ID,
			RouteShortName: k.route.ShortName,
			RouteLongName:  k.route.LongName,
			Headsign:       k.headsign,
			TripCount:      n,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if a.Headsign != b.Headsign {
			return a.Headsign < b.Headsign
		}
		if a.RouteShortName != b.RouteShortName {
			return a.RouteShortName < b.RouteShortName
		}
		return a.RouteLongName < b.RouteLongName
	})

	return result
}

// Matches trip_id against route_id, one group per trip and headsign.
// Route names are the minimum over all matching route rows.
func (s *MemoryStorage) countsLegacy() []*model.HeadsignCount {
	routesByID := map[string][]model.Route{}
	for _, r := range s.routes {
		routesByID[r.ID] = append(routesByID[r.ID], r)
	}

	type key struct {
		tripID   string
		headsign string
	}
	groups := map[key]*model.HeadsignCount{}
	for _, t := range s.trips {
		matches := routesByID[t.ID]
		if len(matches) == 0 {
			continue
		}

		k := key{t.ID, t.Headsign}
		c, found := groups[k]
		if !found {
			c = &model.HeadsignCount{
				RouteID:        matches[0].ID,
				RouteShortName: matches[0].ShortName,
				RouteLongName:  matches[0].LongName,
				Headsign:       t.Headsign,
			}
			for _, r := range matches[1:] {
				if r.ShortName < c.RouteShortName {
					c.RouteShortName = r.ShortName
				}
				if r.LongName < c.RouteLongName {
					c.RouteLongName = r.LongName
				}
			}
			groups[k] = c
		}
		c.TripCount += len(matches)
	}

	result := make([]*model.HeadsignCount, 0, len(groups))
	for _, c := range groups {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RouteID != result[j].RouteID {
			return result[i].RouteID < result[j].RouteID
		}
		return result[i].Headsign < result[j].Headsign
	})

	return result
}

func (s *MemoryStorage) Close() error {
	return nil
}

type memoryBatch struct {
	s      *MemoryStorage
	routes []model.Route
	trips  []model.Trip
	done   bool
}

func (b *memoryBatch) EnsureSchema(ctx context.Context) error {
	return nil
}

func (b *memoryBatch) ClearTrips(ctx context.Context) error {
	b.trips = []model.Trip{}
	return nil
}

func (b *memoryBatch) InsertRoute(ctx context.Context, route *model.Route) error {
	r := *route
	r.ImportedAt = b.s.TimeNow().UTC()
	b.routes = append(b.routes, r)
	return nil
}

func (b *memoryBatch) InsertTrip(ctx context.Context, trip *model.Trip) error {
	t := *trip
	t.ImportedAt = t.ImportedAt.UTC()
	b.trips = append(b.trips, t)
	return nil
}

func (b *memoryBatch) Commit() error {
	if b.done {
		return storeErr("committing", fmt.Errorf("batch already closed"))
	}
	b.done = true

	b.s.mu.Lock()
	b.s.routes = b.routes
	b.s.trips = b.trips
	b.s.mu.Unlock()

	<-b.s.writer
	return nil
}

func (b *memoryBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	<-b.s.writer
	return nil
}
