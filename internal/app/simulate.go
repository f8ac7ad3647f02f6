package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tornwatch/internal/alerting"
	"tornwatch/internal/classify"
	"tornwatch/internal/store"
	"tornwatch/internal/watchlist"
)

// Simulate 对给定价格模拟一次买入判定，用于下单前的心理核对。
// It prints the same verdict a scan would attach to a listing at that price,
// plus an explicit warning when the purchase would be a rip-off.
func (a *App) Simulate(ctx context.Context, itemID, price int64) error {
	if itemID <= 0 || price <= 0 {
		return errors.New("item id and price must be positive")
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := a.newClient(st)
	cat, fair := a.newCaches(api, st)

	snapshot, err := cat.Get(ctx, false)
	if err != nil {
		return err
	}
	fv := fair.Get(ctx, itemID, snapshot)

	overrides := make(classify.Overrides)
	if _, err := store.GetJSON(ctx, st, store.KeyOverrides, &overrides); err != nil {
		return err
	}
	var ovPtr *classify.Override
	if ov, ok := overrides.For(itemID); ok {
		ovPtr = &ov
	}

	watches, err := watchlist.NewBook(st).ForItem(ctx, itemID)
	if err != nil {
		return err
	}
	cls := classify.Classify(price, fv, a.thresholds(), ovPtr, watches)

	name := fmt.Sprintf("#%d", itemID)
	if entry, ok := snapshot.ByID[itemID]; ok {
		name = entry.Name
	}

	fmt.Fprintf(os.Stdout, "%s at %s", name, alerting.FormatMoney(price))
	if f := fv.FairValue(); f != nil {
		fmt.Fprintf(os.Stdout, " (fair %s, n=%d)", alerting.FormatMoney(*f), fv.SampleSize)
	}
	fmt.Fprintln(os.Stdout)

	switch {
	case cls.IsStrongDeal:
		fmt.Fprintln(os.Stdout, "verdict: strong deal, buy it")
	case cls.IsDeal:
		fmt.Fprintln(os.Stdout, "verdict: deal")
	case cls.IsOverpriced:
		fmt.Fprintln(os.Stdout, "verdict: WARNING, well above fair value")
	default:
		fmt.Fprintln(os.Stdout, "verdict: fair price")
	}
	for _, hit := range cls.WatchHits {
		cmp := "≤"
		if hit.Direction == watchlist.AtOrAbove {
			cmp = "≥"
		}
		fmt.Fprintf(os.Stdout, "crosses watch target %s %s\n", cmp, alerting.FormatMoney(hit.TargetPrice))
	}
	return nil
}
