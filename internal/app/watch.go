package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tornwatch/internal/monitor"
	"tornwatch/internal/store"
	"tornwatch/internal/watchlist"
)

// DefaultMuteDuration is how long `watch mute` silences an item when no
// explicit duration is given.
const DefaultMuteDuration = time.Hour

// WatchAdd registers a price target. The name is resolved from the catalog
// when not supplied and the catalog is available.
func (a *App) WatchAdd(ctx context.Context, itemID int64, name string, target int64, dir watchlist.Direction) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if name == "" {
		api := a.newClient(st)
		cat, _ := a.newCaches(api, st)
		if snapshot, err := cat.Get(ctx, false); err == nil {
			if entry, ok := snapshot.ByID[itemID]; ok {
				name = entry.Name
			}
		}
	}
	if name == "" {
		name = "#" + strconv.FormatInt(itemID, 10)
	}

	book := watchlist.NewBook(st)
	if err := book.Add(ctx, watchlist.Entry{
		ItemID:      itemID,
		DisplayName: name,
		TargetPrice: target,
		Direction:   dir,
	}); err != nil {
		return err
	}
	a.Logger.Info().Int64("item_id", itemID).Int64("target", target).Str("direction", string(dir)).Msg("watch added")
	return nil
}

// WatchRemove drops the target for (item, direction).
func (a *App) WatchRemove(ctx context.Context, itemID int64, dir watchlist.Direction) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := watchlist.NewBook(st).Remove(ctx, itemID, dir); err != nil {
		return err
	}
	a.Logger.Info().Int64("item_id", itemID).Str("direction", string(dir)).Msg("watch removed")
	return nil
}

// WatchMute silences alerts for the item for the given duration. Zero means
// the default hour.
func (a *App) WatchMute(ctx context.Context, itemID int64, d time.Duration) error {
	if d <= 0 {
		d = DefaultMuteDuration
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	until := time.Now().Add(d)
	if err := watchlist.NewBook(st).Mute(ctx, itemID, until); err != nil {
		return err
	}
	a.Logger.Info().Int64("item_id", itemID).Time("until", until).Msg("item muted")
	return nil
}

// WatchUnmute lifts a mute immediately.
func (a *App) WatchUnmute(ctx context.Context, itemID int64) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := watchlist.NewBook(st).Unmute(ctx, itemID); err != nil {
		return err
	}
	a.Logger.Info().Int64("item_id", itemID).Msg("item unmuted")
	return nil
}

// WatchReset clears the observed extrema and alert stamps for the item, so
// tracking starts over from the next poll.
func (a *App) WatchReset(ctx context.Context, itemID int64) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := monitor.Reset(ctx, st, itemID); err != nil {
		return err
	}
	a.Logger.Info().Int64("item_id", itemID).Msg("monitor state reset")
	return nil
}

// SetPaused flips the global pause switch shared by the scanner and monitor.
func (a *App) SetPaused(ctx context.Context, paused bool) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var runtime store.RuntimeState
	if _, err := store.GetJSON(ctx, st, store.KeyRuntime, &runtime); err != nil {
		return err
	}
	runtime.Paused = paused
	if err := store.SetJSON(ctx, st, store.KeyRuntime, runtime); err != nil {
		return err
	}
	if paused {
		fmt.Println("paused")
	} else {
		fmt.Println("resumed")
	}
	return nil
}
