package app

import (
	"context"
	"fmt"
	"os"

	"tornwatch/internal/alerting"
)

// CatalogRefresh forces a directory rebuild regardless of freshness.
func (a *App) CatalogRefresh(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := a.newClient(st)
	cat, _ := a.newCaches(api, st)

	snapshot, err := cat.Get(ctx, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "catalog refreshed: %d items\n", len(snapshot.ByID))
	return nil
}

// CatalogLookup resolves an item by name and prints its metadata.
func (a *App) CatalogLookup(ctx context.Context, name string) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := a.newClient(st)
	cat, _ := a.newCaches(api, st)

	snapshot, err := cat.Get(ctx, false)
	if err != nil {
		return err
	}
	entry, ok := snapshot.Lookup(name)
	if !ok {
		return fmt.Errorf("no item named %q in the catalog", name)
	}

	fmt.Fprintf(os.Stdout, "%s (id %d)", entry.Name, entry.ID)
	if entry.ReferenceValue != nil {
		fmt.Fprintf(os.Stdout, ", reference value %s", alerting.FormatMoney(*entry.ReferenceValue))
	}
	fmt.Fprintln(os.Stdout)
	return nil
}
