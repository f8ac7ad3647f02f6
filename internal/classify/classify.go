// Package classify turns a listing price and a fair-value snapshot into a
// deal judgment. It is a pure function of its inputs: no I/O, no clock.
package classify

import (
	"strconv"

	"github.com/shopspring/decimal"

	"tornwatch/internal/fairvalue"
	"tornwatch/internal/watchlist"
)

// Default bands relative to the fair value median.
const (
	DefaultGoodThreshold       = 0.9
	DefaultOverpriceMultiplier = 1.75

	// The strong-deal band never widens past this even if the user
	// loosens the deal threshold.
	strongDealCeiling = 0.8
)

// Thresholds hold the global classification bands.
type Thresholds struct {
	GoodThreshold       float64
	OverpriceMultiplier float64
}

// DefaultThresholds returns the stock bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GoodThreshold:       DefaultGoodThreshold,
		OverpriceMultiplier: DefaultOverpriceMultiplier,
	}
}

// Override adjusts bands for a single item. Nil fields fall back to the
// global thresholds.
type Override struct {
	GoodThreshold       *float64 `json:"good_threshold,omitempty"`
	OverpriceMultiplier *float64 `json:"overprice_multiplier,omitempty"`
	Ignore              bool     `json:"ignore,omitempty"`
}

// Overrides maps item ids (as decimal strings, the persisted form) to their
// overrides.
type Overrides map[string]Override

// For returns the override for itemID, if present.
func (o Overrides) For(itemID int64) (Override, bool) {
	ov, ok := o[strconv.FormatInt(itemID, 10)]
	return ov, ok
}

// WatchHit reports a watch target crossed by the listing price.
type WatchHit struct {
	Direction   watchlist.Direction
	TargetPrice int64
}

// Classification is the verdict for one listing.
type Classification struct {
	IsDeal       bool
	IsStrongDeal bool
	IsOverpriced bool
	WatchHits    []WatchHit
}

// Classify judges price against the fair value and watch targets. Per-item
// override bands take precedence over the global thresholds. Both watch
// directions may fire independently.
func Classify(price int64, fv fairvalue.Snapshot, th Thresholds, override *Override, watches []watchlist.Entry) Classification {
	var cls Classification

	good := th.GoodThreshold
	if good <= 0 {
		good = DefaultGoodThreshold
	}
	over := th.OverpriceMultiplier
	if over <= 0 {
		over = DefaultOverpriceMultiplier
	}
	if override != nil {
		if override.GoodThreshold != nil && *override.GoodThreshold > 0 {
			good = *override.GoodThreshold
		}
		if override.OverpriceMultiplier != nil && *override.OverpriceMultiplier > 0 {
			over = *override.OverpriceMultiplier
		}
	}

	if fair := fv.FairValue(); fair != nil {
		p := decimal.NewFromInt(price)
		f := decimal.NewFromInt(*fair)
		strong := strongDealCeiling
		if good < strong {
			strong = good
		}
		cls.IsDeal = p.LessThanOrEqual(f.Mul(decimal.NewFromFloat(good)))
		cls.IsStrongDeal = p.LessThanOrEqual(f.Mul(decimal.NewFromFloat(strong)))
		cls.IsOverpriced = p.GreaterThanOrEqual(f.Mul(decimal.NewFromFloat(over)))
	}

	for _, w := range watches {
		switch w.Direction {
		case watchlist.AtOrBelow:
			if price <= w.TargetPrice {
				cls.WatchHits = append(cls.WatchHits, WatchHit{Direction: w.Direction, TargetPrice: w.TargetPrice})
			}
		case watchlist.AtOrAbove:
			if price >= w.TargetPrice {
				cls.WatchHits = append(cls.WatchHits, WatchHit{Direction: w.Direction, TargetPrice: w.TargetPrice})
			}
		}
	}

	return cls
}
