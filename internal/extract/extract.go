// Package extract pulls structured listing records out of market page HTML.
// The host page's markup is not under our control, so extraction is
// deliberately permissive and heuristic.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing is one marketplace row. Ephemeral: it lives for a single scan pass.
type Listing struct {
	ItemID   int64
	ItemName string
	Price    int64
	Row      *goquery.Selection
}

// PageAdapter isolates the layout heuristics for one supported host-page
// layout, so the scan loop stays independent of markup details.
type PageAdapter interface {
	// Rows returns candidate listing rows, de-duplicated.
	Rows(doc *goquery.Document) []*goquery.Selection
	// Extract parses one row. Nil when no item id or no price was found.
	Extract(row *goquery.Selection) *Listing
}

const annotatedAttr = "data-tornwatch"

// Marked reports whether the row already carries the annotation marker.
func Marked(row *goquery.Selection) bool {
	v, _ := row.Attr(annotatedAttr)
	return v == "1"
}

// Mark stamps the row so later passes skip it.
func Mark(row *goquery.Selection) {
	row.SetAttr(annotatedAttr, "1")
}

var (
	xidPattern   = regexp.MustCompile(`(?i)XID=(\d+)`)
	pricePattern = regexp.MustCompile(`\$\s?\d[\d,]*`)
	digitPattern = regexp.MustCompile(`\d+`)
)

const (
	itemLinkSelector = `a[href*="item.php?XID="], a[href*="iteminfo.php?XID="]`
	rowSelector      = "li, tr, .item, .market-item, .bazaar-item, .table-row"
)

// TornAdapter implements PageAdapter for Torn market and bazaar pages.
type TornAdapter struct{}

// Rows finds anchors matching the item-link pattern and walks up to the
// nearest row-like ancestor, de-duplicating by ancestor node.
func (TornAdapter) Rows(doc *goquery.Document) []*goquery.Selection {
	var rows []*goquery.Selection
	seen := make(map[any]bool)

	doc.Find(itemLinkSelector).Each(func(_ int, link *goquery.Selection) {
		row := link.Closest(rowSelector)
		if row.Length() == 0 {
			return
		}
		node := row.Get(0)
		if seen[node] {
			return
		}
		seen[node] = true
		rows = append(rows, row)
	})
	return rows
}

// Extract parses item id, price, and display name out of one row.
func (TornAdapter) Extract(row *goquery.Selection) *Listing {
	listing := &Listing{Row: row}

	link := row.Find(itemLinkSelector).First()
	if link.Length() > 0 {
		if href, ok := link.Attr("href"); ok {
			if m := xidPattern.FindStringSubmatch(href); m != nil {
				listing.ItemID, _ = strconv.ParseInt(m[1], 10, 64)
			}
		}
		listing.ItemName = strings.TrimSpace(link.Text())
	}
	if listing.ItemID == 0 {
		for _, attr := range []string{"data-item-id", "data-id"} {
			if raw, ok := row.Attr(attr); ok {
				if m := digitPattern.FindString(raw); m != "" {
					listing.ItemID, _ = strconv.ParseInt(m, 10, 64)
					break
				}
			}
		}
	}

	// Prefer an element whose text carries a currency pattern; fall back to
	// the largest currency-like amount anywhere in the row.
	row.Find("span, div, b, strong, td").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if m := pricePattern.FindString(el.Text()); m != "" {
			listing.Price = parseMoney(m)
			return false
		}
		return true
	})
	if listing.Price == 0 {
		for _, m := range pricePattern.FindAllString(row.Text(), -1) {
			if p := parseMoney(m); p > listing.Price {
				listing.Price = p
			}
		}
	}

	if listing.ItemName == "" {
		if titled := row.Find("[title]").First(); titled.Length() > 0 {
			listing.ItemName = strings.TrimSpace(titled.AttrOr("title", ""))
		}
	}
	if listing.ItemName == "" {
		if bold := row.Find("b, strong, .name").First(); bold.Length() > 0 {
			listing.ItemName = strings.TrimSpace(bold.Text())
		}
	}

	// A record is only actionable with both an id and a price.
	if listing.ItemID == 0 || listing.Price == 0 {
		return nil
	}
	return listing
}

func parseMoney(text string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0
	}
	n, _ := strconv.ParseInt(digits, 10, 64)
	return n
}

var _ PageAdapter = TornAdapter{}
