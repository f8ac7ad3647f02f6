// Package scanner walks a market page document, prices every listing, and
// hands classified annotations to the configured sink.
package scanner

import (
	"context"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"tornwatch/internal/alerting"
	"tornwatch/internal/catalog"
	"tornwatch/internal/classify"
	"tornwatch/internal/extract"
	"tornwatch/internal/fairvalue"
	"tornwatch/internal/monitor"
	"tornwatch/internal/store"
	"tornwatch/internal/watchlist"
)

// DefaultStagger spaces per-row processing so a large page does not hammer
// the fair-value cache all at once.
const DefaultStagger = 30 * time.Millisecond

// Annotation is the scan verdict for one listing, handed to the sink.
type Annotation struct {
	Listing        extract.Listing
	FairValue      fairvalue.Snapshot
	Classification classify.Classification
	// Hidden marks rows filtered out by display settings. The sink decides
	// how to honor it.
	Hidden bool
}

// Annotator consumes scan verdicts. Implementations render, print, or record
// them.
type Annotator interface {
	Annotate(ctx context.Context, a Annotation) error
}

// Summary counts what one scan pass did.
type Summary struct {
	Rows        int
	Annotated   int
	Skipped     int
	Deals       int
	StrongDeals int
	Overpriced  int
	WatchHits   int
}

// Options tune a scan pass.
type Options struct {
	Thresholds     classify.Thresholds
	ShowOnlyDeals  bool
	HideOverpriced bool
	Stagger        time.Duration
	AlertCooldown  time.Duration
}

// Scanner runs classification passes over parsed documents. Rows already
// carrying the annotation marker are skipped, so re-scanning a document is
// idempotent.
type Scanner struct {
	opts      Options
	adapter   extract.PageAdapter
	catalog   *catalog.Cache
	fair      *fairvalue.Cache
	book      *watchlist.Book
	store     store.Store
	annotator Annotator
	notifier  alerting.Notifier
	logger    zerolog.Logger
}

// New constructs a scanner.
func New(opts Options, adapter extract.PageAdapter, cat *catalog.Cache, fair *fairvalue.Cache, book *watchlist.Book, st store.Store, annotator Annotator, notifier alerting.Notifier, logger zerolog.Logger) *Scanner {
	if opts.Stagger <= 0 {
		opts.Stagger = DefaultStagger
	}
	if opts.AlertCooldown <= 0 {
		opts.AlertCooldown = monitor.DefaultAlertCooldown
	}
	if opts.Thresholds.GoodThreshold <= 0 {
		opts.Thresholds = classify.DefaultThresholds()
	}
	return &Scanner{
		opts:      opts,
		adapter:   adapter,
		catalog:   cat,
		fair:      fair,
		book:      book,
		store:     st,
		annotator: annotator,
		notifier:  notifier,
		logger:    logger.With().Str("component", "scanner").Logger(),
	}
}

// ScanDocument runs one pass over doc. A missing catalog aborts the whole
// pass; per-row problems only skip the row.
func (s *Scanner) ScanDocument(ctx context.Context, doc *goquery.Document) (Summary, error) {
	var sum Summary

	var runtime store.RuntimeState
	if _, err := store.GetJSON(ctx, s.store, store.KeyRuntime, &runtime); err != nil {
		return sum, err
	}
	if runtime.Paused {
		s.logger.Info().Msg("scanning paused, skipping pass")
		return sum, nil
	}

	cat, err := s.catalog.Get(ctx, false)
	if err != nil {
		return sum, err
	}

	overrides := make(classify.Overrides)
	if _, err := store.GetJSON(ctx, s.store, store.KeyOverrides, &overrides); err != nil {
		return sum, err
	}

	rows := s.adapter.Rows(doc)
	sum.Rows = len(rows)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if i > 0 {
			select {
			case <-time.After(s.opts.Stagger):
			case <-ctx.Done():
				return sum, ctx.Err()
			}
		}

		if extract.Marked(row) {
			sum.Skipped++
			continue
		}
		listing := s.adapter.Extract(row)
		extract.Mark(row)
		if listing == nil {
			sum.Skipped++
			continue
		}
		if listing.ItemName == "" {
			if entry, ok := cat.ByID[listing.ItemID]; ok {
				listing.ItemName = entry.Name
			}
		}

		var ovPtr *classify.Override
		if ov, ok := overrides.For(listing.ItemID); ok {
			if ov.Ignore {
				sum.Skipped++
				continue
			}
			ovPtr = &ov
		}

		snap := s.fair.Get(ctx, listing.ItemID, cat)
		watches, err := s.book.ForItem(ctx, listing.ItemID)
		if err != nil {
			s.logger.Error().Err(err).Msg("cannot read watchlist")
			watches = nil
		}
		cls := classify.Classify(listing.Price, snap, s.opts.Thresholds, ovPtr, watches)

		a := Annotation{Listing: *listing, FairValue: snap, Classification: cls}
		if s.opts.ShowOnlyDeals && !cls.IsDeal {
			a.Hidden = true
		}
		if s.opts.HideOverpriced && cls.IsOverpriced {
			a.Hidden = true
		}
		if err := s.annotator.Annotate(ctx, a); err != nil {
			s.logger.Error().Err(err).Int64("item_id", listing.ItemID).Msg("annotation failed")
		}
		sum.Annotated++
		if cls.IsDeal {
			sum.Deals++
		}
		if cls.IsStrongDeal {
			sum.StrongDeals++
		}
		if cls.IsOverpriced {
			sum.Overpriced++
		}
		if len(cls.WatchHits) > 0 {
			sum.WatchHits += len(cls.WatchHits)
			s.reportWatchHits(ctx, *listing, snap, cls.WatchHits)
		}
	}
	return sum, nil
}

// reportWatchHits pushes scan-time target crossings through the same history,
// cooldown, and mute machinery the background monitor uses.
func (s *Scanner) reportWatchHits(ctx context.Context, listing extract.Listing, snap fairvalue.Snapshot, hits []classify.WatchHit) {
	now := time.Now()
	muted, err := s.book.Muted(ctx, listing.ItemID, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("cannot read mutes")
		return
	}
	if muted {
		return
	}

	state, err := monitor.LoadState(ctx, s.store)
	if err != nil {
		s.logger.Error().Err(err).Msg("cannot read monitor state")
		return
	}
	key := strconv.FormatInt(listing.ItemID, 10)
	st := state[key]
	if st == nil {
		st = &monitor.ItemState{}
		state[key] = st
	}

	for _, hit := range hits {
		lastAt := &st.LastAlertAt
		if hit.Direction == watchlist.AtOrAbove {
			lastAt = &st.LastHighAlertAt
		}
		if *lastAt != nil && now.Sub(**lastAt) <= s.opts.AlertCooldown {
			continue
		}
		stamped := now
		*lastAt = &stamped

		event := watchlist.AlertEvent{
			Timestamp:   now,
			ItemID:      listing.ItemID,
			Name:        listing.ItemName,
			Price:       listing.Price,
			TargetPrice: hit.TargetPrice,
			Direction:   hit.Direction,
		}
		if err := s.book.PushAlert(ctx, event); err != nil {
			s.logger.Error().Err(err).Msg("cannot persist alert event")
		}
		if s.notifier != nil {
			alert := alerting.Alert{
				Time:        now,
				ItemID:      listing.ItemID,
				Name:        listing.ItemName,
				Price:       listing.Price,
				TargetPrice: hit.TargetPrice,
				Direction:   hit.Direction,
				FairValue:   snap.FairValue(),
				SampleSize:  snap.SampleSize,
			}
			if err := s.notifier.Notify(ctx, alert); err != nil {
				s.logger.Error().Err(err).Msg("failed to dispatch alert")
			}
		}
	}
	if err := store.SetJSON(ctx, s.store, store.KeyMonitorState, state); err != nil {
		s.logger.Error().Err(err).Msg("cannot persist alert stamps")
	}
}
