package watchlist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tornwatch/internal/store"
)

func newBook(t *testing.T) (*Book, context.Context) {
	t.Helper()
	return NewBook(store.NewMemory()), context.Background()
}

func TestAddValidation(t *testing.T) {
	b, ctx := newBook(t)

	err := b.Add(ctx, Entry{ItemID: 1, TargetPrice: 0, Direction: AtOrBelow})
	require.Error(t, err, "non-positive target must be rejected")

	err = b.Add(ctx, Entry{ItemID: 1, TargetPrice: 100, Direction: "sideways"})
	require.Error(t, err, "unknown direction must be rejected")
}

func TestAddReplacesSameDirection(t *testing.T) {
	b, ctx := newBook(t)

	require.NoError(t, b.Add(ctx, Entry{ItemID: 206, DisplayName: "Xanax", TargetPrice: 800000, Direction: AtOrBelow}))
	require.NoError(t, b.Add(ctx, Entry{ItemID: 206, DisplayName: "Xanax", TargetPrice: 820000, Direction: AtOrBelow}))

	entries, err := b.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(820000), entries[0].TargetPrice)
}

func TestLowAndHighTargetsCoexist(t *testing.T) {
	b, ctx := newBook(t)

	require.NoError(t, b.Add(ctx, Entry{ItemID: 206, TargetPrice: 800000, Direction: AtOrBelow}))
	require.NoError(t, b.Add(ctx, Entry{ItemID: 206, TargetPrice: 900000, Direction: AtOrAbove}))

	entries, err := b.ForItem(ctx, 206)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, AtOrBelow, entries[0].Direction)
	assert.Equal(t, AtOrAbove, entries[1].Direction)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	b, ctx := newBook(t)
	require.NoError(t, b.Remove(ctx, 42, AtOrBelow))
}

func TestEntriesOrdering(t *testing.T) {
	b, ctx := newBook(t)

	require.NoError(t, b.Add(ctx, Entry{ItemID: 9, TargetPrice: 10, Direction: AtOrBelow}))
	require.NoError(t, b.Add(ctx, Entry{ItemID: 1, TargetPrice: 10, Direction: AtOrBelow}))
	require.NoError(t, b.Add(ctx, Entry{ItemID: 5, TargetPrice: 10, Direction: AtOrBelow}))

	entries, err := b.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].ItemID)
	assert.Equal(t, int64(5), entries[1].ItemID)
	assert.Equal(t, int64(9), entries[2].ItemID)
}

func TestMuteLifecycle(t *testing.T) {
	b, ctx := newBook(t)
	now := time.Now()

	muted, err := b.Muted(ctx, 206, now)
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, b.Mute(ctx, 206, now.Add(time.Hour)))
	muted, err = b.Muted(ctx, 206, now)
	require.NoError(t, err)
	assert.True(t, muted)

	muted, err = b.Muted(ctx, 206, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, muted, "expired mutes lift on their own")

	require.NoError(t, b.Unmute(ctx, 206))
	muted, err = b.Muted(ctx, 206, now)
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestAlertHistoryCap(t *testing.T) {
	b, ctx := newBook(t)

	for i := 0; i < HistoryCap+5; i++ {
		require.NoError(t, b.PushAlert(ctx, AlertEvent{
			Timestamp: time.Now(),
			ItemID:    int64(i),
			Name:      fmt.Sprintf("item-%d", i),
			Price:     100,
		}))
	}

	alerts, err := b.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, HistoryCap)
	assert.Equal(t, int64(HistoryCap+4), alerts[0].ItemID, "newest alert comes first")
}
