// Package fairvalue computes and caches per-item fair-value snapshots from
// live market listings.
package fairvalue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"tornwatch/internal/catalog"
	"tornwatch/internal/store"
	"tornwatch/internal/tornapi"
)

// DefaultTTL is how long a fair-value snapshot stays fresh.
const DefaultTTL = 60 * time.Second

// Snapshot is one item's fair-value reading. SampleSize == 0 means the values
// are a fallback derived from the catalog reference value, not live listings.
type Snapshot struct {
	FetchedAt  time.Time `json:"fetched_at"`
	Median     *int64    `json:"median"`
	Min        *int64    `json:"min"`
	Max        *int64    `json:"max"`
	SampleSize int       `json:"sample_size"`
}

// Fresh reports whether the snapshot is younger than ttl.
func (s Snapshot) Fresh(ttl time.Duration) bool {
	return !s.FetchedAt.IsZero() && time.Since(s.FetchedAt) < ttl
}

// FairValue returns the representative price: median, else min.
func (s Snapshot) FairValue() *int64 {
	if s.Median != nil {
		return s.Median
	}
	return s.Min
}

// Median returns the middle value of prices; the even-length case averages
// the two middle values and rounds. Nil for an empty slice.
func Median(prices []int64) *int64 {
	if len(prices) == 0 {
		return nil
	}
	sorted := make([]int64, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return &sorted[mid]
	}
	avg := decimal.Avg(decimal.NewFromInt(sorted[mid-1]), decimal.NewFromInt(sorted[mid]))
	med := avg.Round(0).IntPart()
	return &med
}

// Cache fetches and caches fair-value snapshots with a short TTL. Lookups
// never fail: when the live fetch breaks, the catalog reference value stands
// in, because degraded data beats no data.
type Cache struct {
	api    *tornapi.Client
	store  store.Store
	ttl    time.Duration
	logger zerolog.Logger

	group singleflight.Group
	mu    sync.Mutex
	mem   map[int64]Snapshot
}

// New constructs a fair-value cache.
func New(api *tornapi.Client, st store.Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		api:    api,
		store:  st,
		ttl:    ttl,
		logger: logger.With().Str("component", "fairvalue").Logger(),
		mem:    make(map[int64]Snapshot),
	}
	c.load()
	return c
}

func (c *Cache) load() {
	persisted := make(map[string]Snapshot)
	if _, err := store.GetJSON(context.Background(), c.store, store.KeyMarketCache, &persisted); err != nil {
		c.logger.Warn().Err(err).Msg("discarding unreadable market cache")
		return
	}
	for k, snap := range persisted {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			c.mem[id] = snap
		}
	}
}

// Get returns the item's fair value, serving a fresh cache entry when
// available and otherwise fetching live listings. Concurrent callers for the
// same item share one in-flight fetch.
func (c *Cache) Get(ctx context.Context, itemID int64, cat *catalog.Snapshot) Snapshot {
	c.mu.Lock()
	cached, ok := c.mem[itemID]
	c.mu.Unlock()
	if ok && cached.Fresh(c.ttl) {
		return cached
	}

	v, _, _ := c.group.Do(strconv.FormatInt(itemID, 10), func() (any, error) {
		snap, err := c.fetchLive(ctx, itemID)
		if err != nil {
			c.logger.Warn().Err(err).Int64("item_id", itemID).Msg("live fetch failed, using reference value")
			snap = fallback(itemID, cat)
		}
		c.put(ctx, itemID, snap)
		return snap, nil
	})
	return v.(Snapshot)
}

// Fetch performs a live read bypassing the cache. The monitor uses it so
// polls always see current listings. The result still lands in the cache.
func (c *Cache) Fetch(ctx context.Context, itemID int64) (Snapshot, error) {
	snap, err := c.fetchLive(ctx, itemID)
	if err != nil {
		return Snapshot{}, err
	}
	c.put(ctx, itemID, snap)
	return snap, nil
}

// Sweep drops expired snapshots and persists the trimmed cache.
func (c *Cache) Sweep(ctx context.Context) {
	c.mu.Lock()
	removed := 0
	for id, snap := range c.mem {
		if !snap.Fresh(c.ttl) {
			delete(c.mem, id)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.persist(ctx)
		c.logger.Debug().Int("removed", removed).Msg("swept expired fair-value entries")
	}
}

func (c *Cache) fetchLive(ctx context.Context, itemID int64) (Snapshot, error) {
	body, err := c.api.FetchJSON(ctx, fmt.Sprintf("/market/%d", itemID), map[string][]string{"selections": {"market"}})
	if err != nil {
		return Snapshot{}, err
	}

	var prices []int64
	for _, cost := range gjson.GetBytes(body, "market.#.cost").Array() {
		prices = append(prices, cost.Int())
	}

	snap := Snapshot{FetchedAt: time.Now().UTC(), SampleSize: len(prices)}
	snap.Median = Median(prices)
	if len(prices) > 0 {
		minP, maxP := prices[0], prices[0]
		for _, p := range prices[1:] {
			if p < minP {
				minP = p
			}
			if p > maxP {
				maxP = p
			}
		}
		snap.Min = &minP
		snap.Max = &maxP
	}
	return snap, nil
}

func fallback(itemID int64, cat *catalog.Snapshot) Snapshot {
	snap := Snapshot{FetchedAt: time.Now().UTC(), SampleSize: 0}
	if cat != nil {
		if entry, ok := cat.ByID[itemID]; ok && entry.ReferenceValue != nil {
			ref := *entry.ReferenceValue
			snap.Median = &ref
			snap.Min = &ref
			snap.Max = &ref
		}
	}
	return snap
}

func (c *Cache) put(ctx context.Context, itemID int64, snap Snapshot) {
	c.mu.Lock()
	c.mem[itemID] = snap
	c.mu.Unlock()
	c.persist(ctx)
}

func (c *Cache) persist(ctx context.Context) {
	c.mu.Lock()
	out := make(map[string]Snapshot, len(c.mem))
	for id, snap := range c.mem {
		out[strconv.FormatInt(id, 10)] = snap
	}
	c.mu.Unlock()
	if err := store.SetJSON(ctx, c.store, store.KeyMarketCache, out); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist market cache")
	}
}

// Seed inserts a snapshot directly, for tests and cache priming.
func (c *Cache) Seed(ctx context.Context, itemID int64, snap Snapshot) {
	c.put(ctx, itemID, snap)
}
