package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tornwatch/internal/alerting"
	"tornwatch/internal/fairvalue"
	"tornwatch/internal/store"
	"tornwatch/internal/tornapi"
	"tornwatch/internal/watchlist"
)

type staticCredentials string

func (s staticCredentials) APIKey(context.Context) (string, error) {
	return string(s), nil
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (c *captureNotifier) Notify(_ context.Context, alert alerting.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type fixture struct {
	monitor  *Monitor
	store    *store.Memory
	book     *watchlist.Book
	notifier *captureNotifier
	requests *[]string
	close    func()
}

// newFixture wires a monitor against a fake market endpoint that always
// returns a single listing at the given cost.
func newFixture(t *testing.T, cost int64) *fixture {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"market":[{"cost":%d}]}`, cost)
	}))

	st := store.NewMemory()
	api := tornapi.New(tornapi.Options{
		BaseURL:    srv.URL,
		MinSpacing: time.Millisecond,
		Timeout:    time.Second,
	}, staticCredentials("secret"), zerolog.Nop())

	fair := fairvalue.New(api, st, time.Minute, zerolog.Nop())
	book := watchlist.NewBook(st)
	notifier := &captureNotifier{}

	mon := New(Options{
		Enabled:       true,
		Interval:      10 * time.Second,
		AlertCooldown: 90 * time.Second,
	}, fair, book, st, staticCredentials("secret"), notifier, zerolog.Nop())

	return &fixture{
		monitor:  mon,
		store:    st,
		book:     book,
		notifier: notifier,
		requests: &requests,
		close:    srv.Close,
	}
}

func TestTickAlertsOnLowTarget(t *testing.T) {
	f := newFixture(t, 800000)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{
		ItemID: 206, DisplayName: "Xanax", TargetPrice: 850000, Direction: watchlist.AtOrBelow,
	}))

	f.monitor.Tick(ctx)

	require.Equal(t, 1, f.notifier.count(), "price at or below the target must alert")
	alert := f.notifier.alerts[0]
	assert.Equal(t, int64(800000), alert.Price)
	assert.Equal(t, int64(850000), alert.TargetPrice)

	state, err := LoadState(ctx, f.store)
	require.NoError(t, err)
	st := state["206"]
	require.NotNil(t, st)
	assert.False(t, st.LastCheckedAt.IsZero())
	require.NotNil(t, st.ObservedMin)
	assert.Equal(t, int64(800000), *st.ObservedMin)
	require.NotNil(t, st.LastAlertAt)

	alerts, err := f.book.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	var runtime store.RuntimeState
	_, err = store.GetJSON(ctx, f.store, store.KeyRuntime, &runtime)
	require.NoError(t, err)
	assert.Equal(t, 1, runtime.UnreadAlerts)

	history, err := History(ctx, f.store, 206)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestTickNoAlertAboveLowTarget(t *testing.T) {
	f := newFixture(t, 900000)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{
		ItemID: 206, TargetPrice: 850000, Direction: watchlist.AtOrBelow,
	}))

	f.monitor.Tick(ctx)

	assert.Zero(t, f.notifier.count())
	state, err := LoadState(ctx, f.store)
	require.NoError(t, err)
	require.NotNil(t, state["206"], "state updates even without an alert")
}

func TestTickHighTarget(t *testing.T) {
	f := newFixture(t, 920000)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{
		ItemID: 206, TargetPrice: 900000, Direction: watchlist.AtOrAbove,
	}))

	f.monitor.Tick(ctx)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, watchlist.AtOrAbove, f.notifier.alerts[0].Direction)
}

func TestTickRespectsCooldown(t *testing.T) {
	f := newFixture(t, 800000)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{
		ItemID: 206, TargetPrice: 850000, Direction: watchlist.AtOrBelow,
	}))

	// Simulate an item that was polled long ago but alerted recently.
	recent := time.Now().Add(-time.Minute)
	state := State{"206": &ItemState{
		LastCheckedAt: time.Now().Add(-time.Hour),
		LastAlertAt:   &recent,
	}}
	require.NoError(t, store.SetJSON(ctx, f.store, store.KeyMonitorState, state))

	f.monitor.Tick(ctx)

	assert.Zero(t, f.notifier.count(), "alerts within the cooldown window are suppressed")

	reloaded, err := LoadState(ctx, f.store)
	require.NoError(t, err)
	assert.True(t, reloaded["206"].LastCheckedAt.After(time.Now().Add(-time.Minute)), "the poll itself still happens")
}

func TestTickMuteSuppressesAlertOnly(t *testing.T) {
	f := newFixture(t, 800000)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{
		ItemID: 206, TargetPrice: 850000, Direction: watchlist.AtOrBelow,
	}))
	require.NoError(t, f.book.Mute(ctx, 206, time.Now().Add(time.Hour)))

	f.monitor.Tick(ctx)

	assert.Zero(t, f.notifier.count())
	alerts, err := f.book.Alerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	state, err := LoadState(ctx, f.store)
	require.NoError(t, err)
	require.NotNil(t, state["206"])
	assert.NotNil(t, state["206"].ObservedMin, "tracking continues while muted")
}

func TestTickPicksMostOverdueItem(t *testing.T) {
	f := newFixture(t, 500)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{ItemID: 1, TargetPrice: 10, Direction: watchlist.AtOrBelow}))
	require.NoError(t, f.book.Add(ctx, watchlist.Entry{ItemID: 2, TargetPrice: 10, Direction: watchlist.AtOrBelow}))

	state := State{
		"1": &ItemState{LastCheckedAt: time.Now().Add(-time.Minute)},
		"2": &ItemState{LastCheckedAt: time.Now().Add(-time.Hour)},
	}
	require.NoError(t, store.SetJSON(ctx, f.store, store.KeyMonitorState, state))

	f.monitor.Tick(ctx)

	require.Len(t, *f.requests, 1, "exactly one item is polled per tick")
	assert.Equal(t, "/market/2", (*f.requests)[0])
}

func TestTickSkipsWhenNothingDue(t *testing.T) {
	f := newFixture(t, 500)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{ItemID: 1, TargetPrice: 10, Direction: watchlist.AtOrBelow}))
	state := State{"1": &ItemState{LastCheckedAt: time.Now()}}
	require.NoError(t, store.SetJSON(ctx, f.store, store.KeyMonitorState, state))

	f.monitor.Tick(ctx)

	assert.Empty(t, *f.requests, "a recently checked item is not polled again")
}

func TestTickPausedDoesNothing(t *testing.T) {
	f := newFixture(t, 500)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{ItemID: 1, TargetPrice: 10, Direction: watchlist.AtOrBelow}))
	require.NoError(t, store.SetJSON(ctx, f.store, store.KeyRuntime, store.RuntimeState{Paused: true}))

	f.monitor.Tick(ctx)

	assert.Empty(t, *f.requests)
}

func TestTickMergesExtremaAcrossPolls(t *testing.T) {
	f := newFixture(t, 800000)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.book.Add(ctx, watchlist.Entry{
		ItemID: 206, TargetPrice: 1, Direction: watchlist.AtOrBelow,
	}))

	lower := int64(700000)
	state := State{"206": &ItemState{
		LastCheckedAt: time.Now().Add(-time.Hour),
		ObservedMin:   &lower,
		ObservedMax:   &lower,
	}}
	require.NoError(t, store.SetJSON(ctx, f.store, store.KeyMonitorState, state))

	f.monitor.Tick(ctx)

	reloaded, err := LoadState(ctx, f.store)
	require.NoError(t, err)
	st := reloaded["206"]
	require.NotNil(t, st)
	assert.Equal(t, int64(700000), *st.ObservedMin, "earlier minimum survives a higher reading")
	assert.Equal(t, int64(800000), *st.ObservedMax, "maximum advances with the new reading")
}

func TestTickFailedPollLeavesItemDue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":2,"error":"Incorrect key"}}`))
	}))
	defer srv.Close()

	st := store.NewMemory()
	api := tornapi.New(tornapi.Options{BaseURL: srv.URL, MinSpacing: time.Millisecond, Timeout: time.Second},
		staticCredentials("secret"), zerolog.Nop())
	fair := fairvalue.New(api, st, time.Minute, zerolog.Nop())
	book := watchlist.NewBook(st)
	mon := New(Options{Enabled: true}, fair, book, st, staticCredentials("secret"), nil, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, book.Add(ctx, watchlist.Entry{ItemID: 1, TargetPrice: 10, Direction: watchlist.AtOrBelow}))

	mon.Tick(ctx)

	state, err := LoadState(ctx, st)
	require.NoError(t, err)
	assert.Nil(t, state[strconv.FormatInt(1, 10)], "failed poll must not stamp the item")
}

func TestResetClearsItemState(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	low := int64(1)
	require.NoError(t, store.SetJSON(ctx, st, store.KeyMonitorState, State{
		"206": &ItemState{LastCheckedAt: time.Now(), ObservedMin: &low},
	}))

	require.NoError(t, Reset(ctx, st, 206))

	state, err := LoadState(ctx, st)
	require.NoError(t, err)
	assert.Nil(t, state["206"])
}

func TestNewClampsInterval(t *testing.T) {
	mon := New(Options{Enabled: true, Interval: time.Second}, nil, nil, store.NewMemory(), staticCredentials(""), nil, zerolog.Nop())
	assert.Equal(t, FloorInterval, mon.opts.Interval)
}
