package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tornwatch/internal/alerting"
	"tornwatch/internal/watchlist"
)

// Warm prefetches the catalog and a fresh fair value for every watched item,
// so the first scan or poll after startup works from a hot cache. Items are
// fetched sequentially; the client's pacing sets the tempo.
func (a *App) Warm(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := a.newClient(st)
	cat, fair := a.newCaches(api, st)

	if _, err := cat.Get(ctx, false); err != nil {
		return fmt.Errorf("warm catalog: %w", err)
	}

	entries, err := watchlist.NewBook(st).Entries(ctx)
	if err != nil {
		return err
	}

	warmed := 0
	failed := 0
	seen := make(map[int64]bool)
	for _, e := range entries {
		if seen[e.ItemID] {
			continue
		}
		seen[e.ItemID] = true

		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := fair.Fetch(ctx, e.ItemID)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Int64("item_id", e.ItemID).Msg("预热失败")
			continue
		}
		warmed++
		if fv := snap.FairValue(); fv != nil {
			fmt.Fprintf(os.Stdout, "%s: %s (n=%d)\n", e.DisplayName, alerting.FormatMoney(*fv), snap.SampleSize)
		}
	}

	a.Logger.Info().Int("warmed", warmed).Int("failed", failed).Msg("预热完成")
	if failed > 0 {
		return errors.New("部分条目预热失败，请检查日志")
	}
	return nil
}
