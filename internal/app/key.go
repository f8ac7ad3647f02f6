package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tornwatch/internal/store"
)

// KeySet stores the API key. The key itself is never logged.
func (a *App) KeySet(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key must not be empty")
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := store.SetJSON(ctx, st, store.KeyCredential, key); err != nil {
		return err
	}
	a.Logger.Info().Msg("api key stored")
	return nil
}

// KeyClear removes the stored API key. All subsequent requests fail until a
// new key is set.
func (a *App) KeyClear(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(ctx, store.KeyCredential); err != nil {
		return err
	}
	a.Logger.Info().Msg("api key cleared")
	return nil
}

// KeyStatus prints whether a key is configured, without revealing it.
func (a *App) KeyStatus(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var key string
	if _, err := store.GetJSON(ctx, st, store.KeyCredential, &key); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		fmt.Fprintln(os.Stdout, "no api key configured")
		return nil
	}
	fmt.Fprintf(os.Stdout, "api key configured (%d characters)\n", len(strings.TrimSpace(key)))

	api := a.newClient(st)
	if until, ok := api.CoolingDown(); ok {
		fmt.Fprintf(os.Stdout, "rate-limit cool-down active until %s\n", until.Format(time.RFC3339))
	}
	return nil
}
