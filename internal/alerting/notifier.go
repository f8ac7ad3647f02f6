package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tornwatch/internal/watchlist"
)

// Alert 封装一次水位命中的告警上下文。
type Alert struct {
	Time        time.Time
	ItemID      int64
	Name        string
	Price       int64
	TargetPrice int64
	Direction   watchlist.Direction
	FairValue   *int64
	SampleSize  int
}

// Notifier 定义告警输送接口。Delivery is fire-and-forget from the
// monitor's point of view.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the default channel
// when no external channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify emits the alert at warn level so it stands out of routine output.
func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Warn().
		Int64("item_id", alert.ItemID).
		Str("item", alert.Name).
		Int64("price", alert.Price).
		Int64("target", alert.TargetPrice).
		Str("direction", string(alert.Direction)).
		Msg(RenderMessage(alert))
	return nil
}

// Multi fans one alert out to several channels; errors are joined.
type Multi []Notifier

// Notify delivers to every channel, continuing past failures.
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []string
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RenderMessage formats the user-facing alert line.
func RenderMessage(alert Alert) string {
	cmp := "≤"
	verb := "Deal found"
	if alert.Direction == watchlist.AtOrAbove {
		cmp = "≥"
		verb = "Price spike"
	}
	name := alert.Name
	if name == "" {
		name = fmt.Sprintf("#%d", alert.ItemID)
	}
	msg := fmt.Sprintf("%s: %s at %s (target %s %s)", verb, name, FormatMoney(alert.Price), cmp, FormatMoney(alert.TargetPrice))
	if alert.FairValue != nil {
		msg += fmt.Sprintf(" • median %s", FormatMoney(*alert.FairValue))
		if alert.SampleSize > 0 {
			msg += fmt.Sprintf(" • n=%d", alert.SampleSize)
		}
	}
	return msg
}

// FormatMoney renders an integer dollar amount with grouping separators.
func FormatMoney(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := fmt.Sprint(n)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)
	return sign + "$" + strings.Join(groups, ",")
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (Multi)(nil)
)
