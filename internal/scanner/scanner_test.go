package scanner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tornwatch/internal/alerting"
	"tornwatch/internal/catalog"
	"tornwatch/internal/classify"
	"tornwatch/internal/extract"
	"tornwatch/internal/fairvalue"
	"tornwatch/internal/store"
	"tornwatch/internal/tornapi"
	"tornwatch/internal/watchlist"
)

type staticCredentials string

func (s staticCredentials) APIKey(context.Context) (string, error) {
	return string(s), nil
}

type recordingAnnotator struct {
	mu          sync.Mutex
	annotations []Annotation
}

func (r *recordingAnnotator) Annotate(_ context.Context, a Annotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations = append(r.annotations, a)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (r *recordingNotifier) Notify(_ context.Context, alert alerting.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

const pageFixture = `
<ul>
  <li><a href="/item.php?XID=206">Xanax</a><span>$800,000</span></li>
  <li><a href="/item.php?XID=159">First Aid Kit</a><span>$60,000</span></li>
</ul>`

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

type harness struct {
	scanner   *Scanner
	store     *store.Memory
	book      *watchlist.Book
	annotator *recordingAnnotator
	notifier  *recordingNotifier
	fair      *fairvalue.Cache
}

// newHarness builds a scanner whose catalog and fair values are pre-seeded,
// so no request ever leaves the process.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	xanaxRef := int64(830000)
	kitRef := int64(31000)
	snap := catalog.Snapshot{
		FetchedAt: time.Now(),
		ByID: map[int64]catalog.Entry{
			206: {ID: 206, Name: "Xanax", ReferenceValue: &xanaxRef},
			159: {ID: 159, Name: "First Aid Kit", ReferenceValue: &kitRef},
		},
		IDByName: map[string]int64{"xanax": 206, "first aid kit": 159},
	}
	require.NoError(t, store.SetJSON(ctx, st, store.KeyCatalog, snap))

	// Base URL points nowhere; every lookup must be served by the caches.
	api := tornapi.New(tornapi.Options{BaseURL: "http://127.0.0.1:0", MinSpacing: time.Millisecond, Timeout: 100 * time.Millisecond},
		staticCredentials("secret"), zerolog.Nop())
	cat := catalog.New(api, st, time.Hour, zerolog.Nop())
	fair := fairvalue.New(api, st, time.Minute, zerolog.Nop())

	median206 := int64(1000000)
	fair.Seed(ctx, 206, fairvalue.Snapshot{FetchedAt: time.Now(), Median: &median206, Min: &median206, Max: &median206, SampleSize: 8})
	median159 := int64(30000)
	fair.Seed(ctx, 159, fairvalue.Snapshot{FetchedAt: time.Now(), Median: &median159, Min: &median159, Max: &median159, SampleSize: 8})

	book := watchlist.NewBook(st)
	annotator := &recordingAnnotator{}
	notifier := &recordingNotifier{}

	if opts.Stagger == 0 {
		opts.Stagger = time.Millisecond
	}
	scn := New(opts, extract.TornAdapter{}, cat, fair, book, st, annotator, notifier, zerolog.Nop())

	return &harness{scanner: scn, store: st, book: book, annotator: annotator, notifier: notifier, fair: fair}
}

func TestScanDocumentClassifiesRows(t *testing.T) {
	h := newHarness(t, Options{})
	doc := parseDoc(t, pageFixture)

	sum, err := h.scanner.ScanDocument(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, 2, sum.Annotated)
	assert.Equal(t, 1, sum.Deals, "Xanax at 800k against a 1m median is a deal")
	assert.Equal(t, 1, sum.StrongDeals)
	assert.Equal(t, 1, sum.Overpriced, "the kit at 60k against a 30k median is overpriced")

	require.Len(t, h.annotator.annotations, 2)
	first := h.annotator.annotations[0]
	assert.Equal(t, int64(206), first.Listing.ItemID)
	assert.True(t, first.Classification.IsStrongDeal)
}

func TestScanDocumentIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	doc := parseDoc(t, pageFixture)
	ctx := context.Background()

	_, err := h.scanner.ScanDocument(ctx, doc)
	require.NoError(t, err)

	sum, err := h.scanner.ScanDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped, "marked rows are skipped on rescan")
	assert.Equal(t, 0, sum.Annotated)
	assert.Len(t, h.annotator.annotations, 2, "no duplicate annotations")
}

func TestScanDocumentFilters(t *testing.T) {
	h := newHarness(t, Options{ShowOnlyDeals: true, HideOverpriced: true})
	doc := parseDoc(t, pageFixture)

	_, err := h.scanner.ScanDocument(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, h.annotator.annotations, 2)
	for _, a := range h.annotator.annotations {
		if a.Listing.ItemID == 206 {
			assert.False(t, a.Hidden, "deals stay visible")
		} else {
			assert.True(t, a.Hidden, "non-deals are hidden with show-only-deals")
		}
	}
}

func TestScanDocumentHonorsPause(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, h.store, store.KeyRuntime, store.RuntimeState{Paused: true}))

	sum, err := h.scanner.ScanDocument(ctx, parseDoc(t, pageFixture))
	require.NoError(t, err)
	assert.Zero(t, sum.Rows)
	assert.Empty(t, h.annotator.annotations)
}

func TestScanDocumentIgnoreOverride(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, h.store, store.KeyOverrides, classify.Overrides{
		"206": {Ignore: true},
	}))

	sum, err := h.scanner.ScanDocument(ctx, parseDoc(t, pageFixture))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Annotated)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, h.annotator.annotations, 1)
	assert.Equal(t, int64(159), h.annotator.annotations[0].Listing.ItemID)
}

func TestScanDocumentWatchHits(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.book.Add(ctx, watchlist.Entry{
		ItemID: 206, DisplayName: "Xanax", TargetPrice: 850000, Direction: watchlist.AtOrBelow,
	}))

	sum, err := h.scanner.ScanDocument(ctx, parseDoc(t, pageFixture))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.WatchHits)

	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, int64(800000), h.notifier.alerts[0].Price)

	alerts, err := h.book.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "scan-time hits land in the alert history")
}

func TestScanDocumentWatchHitMuted(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.book.Add(ctx, watchlist.Entry{
		ItemID: 206, TargetPrice: 850000, Direction: watchlist.AtOrBelow,
	}))
	require.NoError(t, h.book.Mute(ctx, 206, time.Now().Add(time.Hour)))

	sum, err := h.scanner.ScanDocument(ctx, parseDoc(t, pageFixture))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.WatchHits, "the hit is still reported on the annotation")
	assert.Empty(t, h.notifier.alerts, "muted items do not notify")
}

func TestScanDocumentCatalogFailureAborts(t *testing.T) {
	// No persisted catalog and an unreachable API: the pass must abort.
	st := store.NewMemory()
	api := tornapi.New(tornapi.Options{BaseURL: "http://127.0.0.1:0", MinSpacing: time.Millisecond, Timeout: 100 * time.Millisecond},
		staticCredentials("secret"), zerolog.Nop())
	cat := catalog.New(api, st, time.Hour, zerolog.Nop())
	fair := fairvalue.New(api, st, time.Minute, zerolog.Nop())
	scn := New(Options{Stagger: time.Millisecond}, extract.TornAdapter{}, cat, fair, watchlist.NewBook(st), st, &recordingAnnotator{}, nil, zerolog.Nop())

	_, err := scn.ScanDocument(context.Background(), parseDoc(t, pageFixture))
	require.Error(t, err)
}

func TestScanDocumentFallbackWhenFairValueUnavailable(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// Drop the seeded snapshot for the kit; its lookup falls back to the
	// catalog reference value.
	h.fair.Seed(ctx, 159, fairvalue.Snapshot{FetchedAt: time.Now().Add(-time.Hour)})

	_, err := h.scanner.ScanDocument(ctx, parseDoc(t, pageFixture))
	require.NoError(t, err)

	for _, a := range h.annotator.annotations {
		if a.Listing.ItemID == 159 {
			assert.Zero(t, a.FairValue.SampleSize, "fallback snapshots carry no samples")
			require.NotNil(t, a.FairValue.Median)
			assert.Equal(t, int64(31000), *a.FairValue.Median)
		}
	}
}
