// Package watchlist manages user-defined price targets, per-item mutes, and
// the bounded alert history.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tornwatch/internal/store"
)

// Direction tells which way a target fires.
type Direction string

const (
	// AtOrBelow fires when the observed price drops to the target or lower.
	AtOrBelow Direction = "at-or-below"
	// AtOrAbove fires when the observed price rises to the target or higher.
	AtOrAbove Direction = "at-or-above"
)

// HistoryCap bounds the persisted alert history, most recent first.
const HistoryCap = 20

// Entry is one watched (item, target, direction) tuple. Low and high targets
// for the same item are distinct entries.
type Entry struct {
	ItemID      int64     `json:"item_id"`
	DisplayName string    `json:"display_name"`
	TargetPrice int64     `json:"target_price"`
	Direction   Direction `json:"direction"`
}

// AlertEvent records a fired alert for history display.
type AlertEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	ItemID      int64     `json:"item_id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	TargetPrice int64     `json:"target_price"`
	Direction   Direction `json:"direction"`
}

func entryKey(itemID int64, dir Direction) string {
	return fmt.Sprintf("%d/%s", itemID, dir)
}

// Book is the store-backed watchlist. Every mutation rewrites the whole
// record, matching the store's replace-wholesale contract.
type Book struct {
	store store.Store
}

// NewBook constructs a Book over the given store.
func NewBook(st store.Store) *Book {
	return &Book{store: st}
}

// Add inserts or replaces the entry for (item, direction).
func (b *Book) Add(ctx context.Context, e Entry) error {
	if e.TargetPrice <= 0 {
		return errors.New("watchlist: target price must be positive")
	}
	if e.Direction != AtOrBelow && e.Direction != AtOrAbove {
		return fmt.Errorf("watchlist: unknown direction %q", e.Direction)
	}
	entries, err := b.load(ctx)
	if err != nil {
		return err
	}
	entries[entryKey(e.ItemID, e.Direction)] = e
	return store.SetJSON(ctx, b.store, store.KeyWatchlist, entries)
}

// Remove deletes the entry for (item, direction). Removing a missing entry is
// a no-op.
func (b *Book) Remove(ctx context.Context, itemID int64, dir Direction) error {
	entries, err := b.load(ctx)
	if err != nil {
		return err
	}
	delete(entries, entryKey(itemID, dir))
	return store.SetJSON(ctx, b.store, store.KeyWatchlist, entries)
}

// Entries returns all watched entries ordered by item id then direction.
func (b *Book) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Direction < out[j].Direction
	})
	return out, nil
}

// ForItem returns the entries watching itemID, if any.
func (b *Book) ForItem(ctx context.Context, itemID int64) ([]Entry, error) {
	entries, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, dir := range []Direction{AtOrBelow, AtOrAbove} {
		if e, ok := entries[entryKey(itemID, dir)]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *Book) load(ctx context.Context) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	if _, err := store.GetJSON(ctx, b.store, store.KeyWatchlist, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Mute suppresses notifications for itemID until the deadline. Monitor state
// keeps updating while muted; only the user-facing alert is held back.
func (b *Book) Mute(ctx context.Context, itemID int64, until time.Time) error {
	mutes, err := b.mutes(ctx)
	if err != nil {
		return err
	}
	mutes[fmt.Sprint(itemID)] = until
	return store.SetJSON(ctx, b.store, store.KeyMutes, mutes)
}

// Unmute clears any mute deadline for itemID.
func (b *Book) Unmute(ctx context.Context, itemID int64) error {
	mutes, err := b.mutes(ctx)
	if err != nil {
		return err
	}
	delete(mutes, fmt.Sprint(itemID))
	return store.SetJSON(ctx, b.store, store.KeyMutes, mutes)
}

// Muted reports whether itemID is muted at the given instant.
func (b *Book) Muted(ctx context.Context, itemID int64, at time.Time) (bool, error) {
	mutes, err := b.mutes(ctx)
	if err != nil {
		return false, err
	}
	until, ok := mutes[fmt.Sprint(itemID)]
	return ok && at.Before(until), nil
}

func (b *Book) mutes(ctx context.Context) (map[string]time.Time, error) {
	mutes := make(map[string]time.Time)
	if _, err := store.GetJSON(ctx, b.store, store.KeyMutes, &mutes); err != nil {
		return nil, err
	}
	return mutes, nil
}

// PushAlert prepends the event to the alert history, trimming to HistoryCap.
func (b *Book) PushAlert(ctx context.Context, event AlertEvent) error {
	history, err := b.Alerts(ctx)
	if err != nil {
		return err
	}
	history = append([]AlertEvent{event}, history...)
	if len(history) > HistoryCap {
		history = history[:HistoryCap]
	}
	return store.SetJSON(ctx, b.store, store.KeyAlertHistory, history)
}

// Alerts returns the alert history, most recent first.
func (b *Book) Alerts(ctx context.Context) ([]AlertEvent, error) {
	var history []AlertEvent
	if _, err := store.GetJSON(ctx, b.store, store.KeyAlertHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}
