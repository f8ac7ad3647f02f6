// Package catalog maintains the item directory: id to metadata, plus a
// case-insensitive name index for lookups.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tornwatch/internal/store"
	"tornwatch/internal/tornapi"
)

// DefaultTTL is how long a catalog snapshot stays fresh.
const DefaultTTL = 24 * time.Hour

// Entry describes one item in the directory.
type Entry struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ReferenceValue *int64 `json:"reference_value"`
}

// Snapshot is an immutable catalog generation. Replaced atomically on
// refresh, never partially mutated.
type Snapshot struct {
	FetchedAt time.Time        `json:"fetched_at"`
	ByID      map[int64]Entry  `json:"by_id"`
	IDByName  map[string]int64 `json:"id_by_name"`
}

// Fresh reports whether the snapshot is younger than ttl.
func (s *Snapshot) Fresh(ttl time.Duration) bool {
	return s != nil && time.Since(s.FetchedAt) < ttl
}

// Lookup resolves a display name to its entry, case-insensitively.
func (s *Snapshot) Lookup(name string) (Entry, bool) {
	id, ok := s.IDByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Entry{}, false
	}
	entry, ok := s.ByID[id]
	return entry, ok
}

// Cache lazily fetches and persists the directory with a long TTL.
type Cache struct {
	api    *tornapi.Client
	store  store.Store
	ttl    time.Duration
	logger zerolog.Logger

	mu   sync.Mutex
	snap *Snapshot
}

// New constructs a catalog cache.
func New(api *tornapi.Client, st store.Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		api:    api,
		store:  st,
		ttl:    ttl,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Get returns the current snapshot, rebuilding it when expired or when
// forceRefresh is set. Fetch failures propagate and leave any previous
// snapshot untouched.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap == nil {
		var persisted Snapshot
		ok, err := store.GetJSON(ctx, c.store, store.KeyCatalog, &persisted)
		if err != nil {
			return nil, err
		}
		if ok {
			c.snap = &persisted
		}
	}
	if !forceRefresh && c.snap.Fresh(c.ttl) {
		return c.snap, nil
	}

	snap, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.SetJSON(ctx, c.store, store.KeyCatalog, snap); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist catalog snapshot")
	}
	c.snap = snap
	c.logger.Info().Int("items", len(snap.ByID)).Msg("catalog refreshed")
	return snap, nil
}

func (c *Cache) fetch(ctx context.Context) (*Snapshot, error) {
	body, err := c.api.FetchJSON(ctx, "/torn/", map[string][]string{"selections": {"items"}})
	if err != nil {
		return nil, fmt.Errorf("fetch item directory: %w", err)
	}

	var payload struct {
		Items map[string]struct {
			Name        string `json:"name"`
			MarketValue *int64 `json:"market_value"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode item directory: %w", err)
	}

	snap := &Snapshot{
		FetchedAt: time.Now().UTC(),
		ByID:      make(map[int64]Entry, len(payload.Items)),
		IDByName:  make(map[string]int64, len(payload.Items)),
	}
	for rawID, info := range payload.Items {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			continue
		}
		snap.ByID[id] = Entry{ID: id, Name: info.Name, ReferenceValue: info.MarketValue}
		// Name collisions resolve last-write-wins; item names are unique
		// enough in practice.
		snap.IDByName[strings.ToLower(info.Name)] = id
	}
	return snap, nil
}
