package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"tornwatch/internal/alerting"
	"tornwatch/internal/monitor"
	"tornwatch/internal/store"
	"tornwatch/internal/watchlist"
)

// Show prints the watchlist with monitor state, then the recent alert
// history. Viewing the history clears the unread counter.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	book := watchlist.NewBook(st)
	entries, err := book.Entries(ctx)
	if err != nil {
		return err
	}
	state, err := monitor.LoadState(ctx, st)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "watchlist is empty")
	} else {
		now := time.Now()
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Item\tID\tTarget\tDirection\tSeen Min\tSeen Max\tChecked\tMuted")
		for _, e := range entries {
			itemState := state[strconv.FormatInt(e.ItemID, 10)]
			muted, _ := book.Muted(ctx, e.ItemID, now)
			fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.DisplayName,
				e.ItemID,
				alerting.FormatMoney(e.TargetPrice),
				e.Direction,
				optionalMoney(itemState, func(s *monitor.ItemState) *int64 { return s.ObservedMin }),
				optionalMoney(itemState, func(s *monitor.ItemState) *int64 { return s.ObservedMax }),
				formatChecked(itemState, now),
				formatBool(muted),
			)
		}
		writer.Flush()
	}

	alerts, err := book.Alerts(ctx)
	if err != nil {
		return err
	}
	limit := opts.Limit
	if limit <= 0 || limit > len(alerts) {
		limit = len(alerts)
	}

	fmt.Fprintln(os.Stdout)
	if limit == 0 {
		fmt.Fprintln(os.Stdout, "no alerts recorded")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tItem\tPrice\tTarget\tDirection")
		for _, alert := range alerts[:limit] {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				alert.Timestamp.UTC().Format(time.RFC3339),
				sanitizeInline(alert.Name),
				alerting.FormatMoney(alert.Price),
				alerting.FormatMoney(alert.TargetPrice),
				alert.Direction,
			)
		}
		writer.Flush()
	}

	return a.clearUnread(ctx, st)
}

func (a *App) clearUnread(ctx context.Context, st store.Store) error {
	var runtime store.RuntimeState
	if _, err := store.GetJSON(ctx, st, store.KeyRuntime, &runtime); err != nil {
		return err
	}
	if runtime.UnreadAlerts == 0 {
		return nil
	}
	runtime.UnreadAlerts = 0
	return store.SetJSON(ctx, st, store.KeyRuntime, runtime)
}

func optionalMoney(s *monitor.ItemState, get func(*monitor.ItemState) *int64) string {
	if s == nil {
		return "-"
	}
	v := get(s)
	if v == nil {
		return "-"
	}
	return alerting.FormatMoney(*v)
}

func formatChecked(s *monitor.ItemState, now time.Time) string {
	if s == nil || s.LastCheckedAt.IsZero() {
		return "never"
	}
	return now.Sub(s.LastCheckedAt).Truncate(time.Second).String() + " ago"
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
