// Package monitor polls watched items in the background and raises throttled
// alerts when a price target is crossed.
package monitor

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tornwatch/internal/alerting"
	"tornwatch/internal/fairvalue"
	"tornwatch/internal/store"
	"tornwatch/internal/tornapi"
	"tornwatch/internal/watchlist"
)

const (
	// DefaultInterval is the per-item poll cadence; FloorInterval is the
	// hard minimum regardless of configuration.
	DefaultInterval = 30 * time.Second
	FloorInterval   = 10 * time.Second

	// DefaultAlertCooldown throttles repeat alerts per item and direction.
	DefaultAlertCooldown = 90 * time.Second

	// DefaultHistoryCap bounds the per-item price history series.
	DefaultHistoryCap = 500
)

// ItemState is the rolling monitor record for one watched item. ObservedMin
// and ObservedMax are running extrema across polls; they never reset
// automatically, only via an explicit Reset.
type ItemState struct {
	LastCheckedAt   time.Time  `json:"last_checked_at"`
	ObservedMin     *int64     `json:"observed_min,omitempty"`
	ObservedMax     *int64     `json:"observed_max,omitempty"`
	LastAlertAt     *time.Time `json:"last_alert_at,omitempty"`
	LastHighAlertAt *time.Time `json:"last_high_alert_at,omitempty"`
}

// State maps item ids (decimal strings, the persisted form) to their records.
type State map[string]*ItemState

// PricePoint is one observed reading, kept for history display and export.
type PricePoint struct {
	Time   time.Time `json:"time"`
	Median *int64    `json:"median"`
	Min    *int64    `json:"min"`
	Max    *int64    `json:"max"`
}

// Options tune the monitor.
type Options struct {
	Enabled       bool
	Interval      time.Duration
	AlertCooldown time.Duration
	HistoryCap    int
}

// Monitor checks at most one watched item per tick, picking the most overdue
// one. Fetch failures are swallowed: a bad poll must never halt the loop.
type Monitor struct {
	opts     Options
	fair     *fairvalue.Cache
	book     *watchlist.Book
	store    store.Store
	creds    tornapi.CredentialSource
	notifier alerting.Notifier
	logger   zerolog.Logger

	busy atomic.Bool
}

// New constructs a monitor.
func New(opts Options, fair *fairvalue.Cache, book *watchlist.Book, st store.Store, creds tornapi.CredentialSource, notifier alerting.Notifier, logger zerolog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < FloorInterval {
		opts.Interval = FloorInterval
	}
	if opts.AlertCooldown <= 0 {
		opts.AlertCooldown = DefaultAlertCooldown
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	return &Monitor{
		opts:     opts,
		fair:     fair,
		book:     book,
		store:    st,
		creds:    creds,
		notifier: notifier,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

// Tick runs one monitor pass. The busy flag keeps ticks from overlapping
// when a fetch outlasts the tick interval.
func (m *Monitor) Tick(ctx context.Context) {
	if !m.busy.CompareAndSwap(false, true) {
		return
	}
	defer m.busy.Store(false)

	if !m.opts.Enabled {
		return
	}
	var runtime store.RuntimeState
	if _, err := store.GetJSON(ctx, m.store, store.KeyRuntime, &runtime); err != nil {
		m.logger.Error().Err(err).Msg("cannot read runtime state")
		return
	}
	if runtime.Paused {
		return
	}
	if key, err := m.creds.APIKey(ctx); err != nil || key == "" {
		return
	}

	entries, err := m.book.Entries(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("cannot read watchlist")
		return
	}
	if len(entries) == 0 {
		return
	}

	state, err := m.loadState(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("cannot read monitor state")
		return
	}

	itemID, ok := m.selectDue(entries, state, time.Now())
	if !ok {
		return
	}

	snap, err := m.fair.Fetch(ctx, itemID)
	if err != nil {
		// Best-effort: leave LastCheckedAt alone so the item stays due.
		m.logger.Debug().Err(err).Int64("item_id", itemID).Msg("poll failed")
		return
	}

	key := strconv.FormatInt(itemID, 10)
	st := state[key]
	if st == nil {
		st = &ItemState{}
		state[key] = st
	}
	merge(st, snap)
	st.LastCheckedAt = time.Now()
	if err := store.SetJSON(ctx, m.store, store.KeyMonitorState, state); err != nil {
		m.logger.Error().Err(err).Msg("cannot persist monitor state")
	}
	m.appendHistory(ctx, key, snap)

	m.maybeAlert(ctx, itemID, entries, st, snap, state)
}

// selectDue picks the watched item whose last check is the oldest and at
// least one interval ago.
func (m *Monitor) selectDue(entries []watchlist.Entry, state State, now time.Time) (int64, bool) {
	var (
		pick      int64
		oldestAge time.Duration = -1
	)
	seen := make(map[int64]bool)
	for _, e := range entries {
		if seen[e.ItemID] {
			continue
		}
		seen[e.ItemID] = true
		var last time.Time
		if st := state[strconv.FormatInt(e.ItemID, 10)]; st != nil {
			last = st.LastCheckedAt
		}
		age := now.Sub(last)
		if age >= m.opts.Interval && age > oldestAge {
			oldestAge = age
			pick = e.ItemID
		}
	}
	return pick, oldestAge >= 0
}

// merge folds a fresh reading into the running extrema.
func merge(st *ItemState, snap fairvalue.Snapshot) {
	low := snap.Min
	if low == nil {
		low = snap.Median
	}
	high := snap.Max
	if high == nil {
		high = snap.Median
	}
	if low != nil && (st.ObservedMin == nil || *low < *st.ObservedMin) {
		v := *low
		st.ObservedMin = &v
	}
	if high != nil && (st.ObservedMax == nil || *high > *st.ObservedMax) {
		v := *high
		st.ObservedMax = &v
	}
}

func (m *Monitor) maybeAlert(ctx context.Context, itemID int64, entries []watchlist.Entry, st *ItemState, snap fairvalue.Snapshot, state State) {
	now := time.Now()
	muted, err := m.book.Muted(ctx, itemID, now)
	if err != nil {
		m.logger.Error().Err(err).Msg("cannot read mutes")
		muted = false
	}

	for _, e := range entries {
		if e.ItemID != itemID {
			continue
		}
		var (
			observed *int64
			lastAt   **time.Time
		)
		switch e.Direction {
		case watchlist.AtOrBelow:
			if st.ObservedMin == nil || *st.ObservedMin > e.TargetPrice {
				continue
			}
			observed = st.ObservedMin
			lastAt = &st.LastAlertAt
		case watchlist.AtOrAbove:
			if st.ObservedMax == nil || *st.ObservedMax < e.TargetPrice {
				continue
			}
			observed = st.ObservedMax
			lastAt = &st.LastHighAlertAt
		default:
			continue
		}

		if muted {
			continue
		}
		if *lastAt != nil && now.Sub(**lastAt) <= m.opts.AlertCooldown {
			continue
		}

		stamped := now
		*lastAt = &stamped
		if err := store.SetJSON(ctx, m.store, store.KeyMonitorState, state); err != nil {
			m.logger.Error().Err(err).Msg("cannot persist alert stamp")
		}
		m.fire(ctx, e, *observed, snap)
	}
}

func (m *Monitor) fire(ctx context.Context, e watchlist.Entry, price int64, snap fairvalue.Snapshot) {
	event := watchlist.AlertEvent{
		Timestamp:   time.Now(),
		ItemID:      e.ItemID,
		Name:        e.DisplayName,
		Price:       price,
		TargetPrice: e.TargetPrice,
		Direction:   e.Direction,
	}
	if err := m.book.PushAlert(ctx, event); err != nil {
		m.logger.Error().Err(err).Msg("cannot persist alert event")
	}

	var runtime store.RuntimeState
	if _, err := store.GetJSON(ctx, m.store, store.KeyRuntime, &runtime); err == nil {
		runtime.UnreadAlerts++
		if err := store.SetJSON(ctx, m.store, store.KeyRuntime, runtime); err != nil {
			m.logger.Error().Err(err).Msg("cannot bump unread counter")
		}
	}

	if m.notifier != nil {
		alert := alerting.Alert{
			Time:        event.Timestamp,
			ItemID:      e.ItemID,
			Name:        e.DisplayName,
			Price:       price,
			TargetPrice: e.TargetPrice,
			Direction:   e.Direction,
			FairValue:   snap.FairValue(),
			SampleSize:  snap.SampleSize,
		}
		if err := m.notifier.Notify(ctx, alert); err != nil {
			m.logger.Error().Err(err).Int64("item_id", e.ItemID).Msg("failed to dispatch alert")
		}
	}
}

func (m *Monitor) loadState(ctx context.Context) (State, error) {
	state := make(State)
	if _, err := store.GetJSON(ctx, m.store, store.KeyMonitorState, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// LoadState reads the persisted monitor state for display.
func LoadState(ctx context.Context, st store.Store) (State, error) {
	state := make(State)
	if _, err := store.GetJSON(ctx, st, store.KeyMonitorState, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// Reset clears the observed extrema and alert stamps for itemID.
func Reset(ctx context.Context, st store.Store, itemID int64) error {
	state := make(State)
	if _, err := store.GetJSON(ctx, st, store.KeyMonitorState, &state); err != nil {
		return err
	}
	delete(state, strconv.FormatInt(itemID, 10))
	return store.SetJSON(ctx, st, store.KeyMonitorState, state)
}

func (m *Monitor) appendHistory(ctx context.Context, key string, snap fairvalue.Snapshot) {
	history := make(map[string][]PricePoint)
	if _, err := store.GetJSON(ctx, m.store, store.KeyPriceHistory, &history); err != nil {
		m.logger.Warn().Err(err).Msg("discarding unreadable price history")
		history = make(map[string][]PricePoint)
	}
	series := append(history[key], PricePoint{
		Time:   snap.FetchedAt,
		Median: snap.Median,
		Min:    snap.Min,
		Max:    snap.Max,
	})
	if len(series) > m.opts.HistoryCap {
		series = series[len(series)-m.opts.HistoryCap:]
	}
	history[key] = series
	if err := store.SetJSON(ctx, m.store, store.KeyPriceHistory, history); err != nil {
		m.logger.Error().Err(err).Msg("cannot persist price history")
	}
}

// History reads the persisted price series for one item.
func History(ctx context.Context, st store.Store, itemID int64) ([]PricePoint, error) {
	history := make(map[string][]PricePoint)
	if _, err := store.GetJSON(ctx, st, store.KeyPriceHistory, &history); err != nil {
		return nil, err
	}
	return history[strconv.FormatInt(itemID, 10)], nil
}
