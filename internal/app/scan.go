package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tornwatch/internal/alerting"
	"tornwatch/internal/extract"
	"tornwatch/internal/scanner"
	"tornwatch/internal/watchlist"
)

// Scan classifies every listing in an HTML snapshot and prints the report.
// With Follow set it keeps watching the file and rescans on change.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := a.newClient(st)
	cat, fair := a.newCaches(api, st)
	book := watchlist.NewBook(st)

	sink := &reportAnnotator{out: os.Stdout}
	scn := scanner.New(scanner.Options{
		Thresholds:     a.thresholds(),
		ShowOnlyDeals:  opts.ShowOnlyDeals || a.Config.Scanner.ShowOnlyDeals,
		HideOverpriced: opts.HideOverpriced || a.Config.Scanner.HideOverpriced,
		Stagger:        a.Config.Scanner.Stagger,
		AlertCooldown:  a.Config.Monitor.AlertCooldown,
	}, extract.TornAdapter{}, cat, fair, book, st, sink, a.newNotifier(), a.Logger)

	if !opts.Follow {
		doc, err := loadDocument(opts.Path)
		if err != nil {
			return err
		}
		return a.scanOnce(ctx, scn, sink, doc)
	}
	if opts.Path == "" || opts.Path == "-" {
		return errors.New("--follow requires a file path")
	}
	return a.follow(ctx, scn, sink, opts.Path)
}

func (a *App) scanOnce(ctx context.Context, scn *scanner.Scanner, sink *reportAnnotator, doc *goquery.Document) error {
	sink.begin()
	sum, err := scn.ScanDocument(ctx, doc)
	if err != nil {
		return err
	}
	sink.flush()
	fmt.Fprintf(os.Stdout, "%d rows, %d annotated, %d skipped, %d deals (%d strong), %d overpriced, %d watch hits\n",
		sum.Rows, sum.Annotated, sum.Skipped, sum.Deals, sum.StrongDeals, sum.Overpriced, sum.WatchHits)
	return nil
}

// follow polls the snapshot's modification time and routes changes through a
// debouncer, so editors that write in bursts trigger a single rescan.
func (a *App) follow(ctx context.Context, scn *scanner.Scanner, sink *reportAnnotator, path string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rescan := func() {
		doc, err := loadDocument(path)
		if err != nil {
			a.Logger.Error().Err(err).Str("path", path).Msg("cannot reload snapshot")
			return
		}
		if err := a.scanOnce(ctx, scn, sink, doc); err != nil {
			a.Logger.Error().Err(err).Msg("scan pass failed")
		}
	}
	deb := scanner.NewDebouncer(a.Config.Scanner.Debounce, rescan)
	defer deb.Stop()

	deb.Trigger()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				deb.Trigger()
			}
		}
	}
}

func loadDocument(path string) (*goquery.Document, error) {
	var r io.Reader
	if path == "" || path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// reportAnnotator renders scan verdicts as a table on the configured writer.
type reportAnnotator struct {
	out io.Writer
	tw  *tabwriter.Writer
}

func (r *reportAnnotator) begin() {
	r.tw = tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(r.tw, "Item\tID\tPrice\tFair\tSamples\tVerdict")
}

func (r *reportAnnotator) flush() {
	if r.tw != nil {
		r.tw.Flush()
	}
}

func (r *reportAnnotator) Annotate(_ context.Context, a scanner.Annotation) error {
	if a.Hidden {
		return nil
	}
	fair := "-"
	if fv := a.FairValue.FairValue(); fv != nil {
		fair = alerting.FormatMoney(*fv)
	}
	fmt.Fprintf(r.tw, "%s\t%d\t%s\t%s\t%d\t%s\n",
		a.Listing.ItemName,
		a.Listing.ItemID,
		alerting.FormatMoney(a.Listing.Price),
		fair,
		a.FairValue.SampleSize,
		verdict(a),
	)
	return nil
}

func verdict(a scanner.Annotation) string {
	var parts []string
	switch {
	case a.Classification.IsStrongDeal:
		parts = append(parts, "STRONG DEAL")
	case a.Classification.IsDeal:
		parts = append(parts, "deal")
	case a.Classification.IsOverpriced:
		parts = append(parts, "overpriced")
	default:
		parts = append(parts, "fair")
	}
	for _, hit := range a.Classification.WatchHits {
		cmp := "≤"
		if hit.Direction == watchlist.AtOrAbove {
			cmp = "≥"
		}
		parts = append(parts, fmt.Sprintf("watch %s %s", cmp, alerting.FormatMoney(hit.TargetPrice)))
	}
	return strings.Join(parts, ", ")
}

var _ scanner.Annotator = (*reportAnnotator)(nil)
