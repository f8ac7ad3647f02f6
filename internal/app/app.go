package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tornwatch/internal/alerting"
	"tornwatch/internal/catalog"
	"tornwatch/internal/classify"
	"tornwatch/internal/config"
	"tornwatch/internal/fairvalue"
	"tornwatch/internal/monitor"
	"tornwatch/internal/scheduler"
	"tornwatch/internal/service"
	"tornwatch/internal/store"
	"tornwatch/internal/store/postgres"
	"tornwatch/internal/store/sqlite"
	"tornwatch/internal/tornapi"
	"tornwatch/internal/watchlist"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	switch a.Config.Storage.Driver {
	case "postgres":
		return postgres.Open(ctx, postgres.Options{
			DSN:             a.Config.Storage.DSN,
			MaxOpenConns:    a.Config.Storage.MaxOpenConns,
			ConnMaxLifetime: a.Config.Storage.ConnMaxLifetime,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return sqlite.Open(ctx, a.Config.Storage.Path)
	}
}

func (a *App) newClient(st store.Store) *tornapi.Client {
	return tornapi.New(tornapi.Options{
		BaseURL:    a.Config.API.BaseURL,
		MinSpacing: a.Config.API.MinSpacing,
		Cooldown:   a.Config.API.Cooldown,
		Timeout:    a.Config.API.RequestTimeout,
		UserAgent:  a.Config.API.UserAgent,
	}, tornapi.StoreCredentials{Store: st}, a.Logger)
}

func (a *App) newCaches(api *tornapi.Client, st store.Store) (*catalog.Cache, *fairvalue.Cache) {
	cat := catalog.New(api, st, a.Config.Catalog.TTL, a.Logger)
	fair := fairvalue.New(api, st, a.Config.Market.TTL, a.Logger)
	return cat, fair
}

func (a *App) newNotifier() alerting.Notifier {
	notifiers := []alerting.Notifier{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return alerting.Multi(notifiers)
}

func (a *App) thresholds() classify.Thresholds {
	return classify.Thresholds{
		GoodThreshold:       a.Config.Scanner.GoodThreshold,
		OverpriceMultiplier: a.Config.Scanner.OverpriceMultiplier,
	}
}

// Run executes the long-running background monitor.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	api := a.newClient(st)
	cat, fair := a.newCaches(api, st)
	book := watchlist.NewBook(st)
	notifier := a.newNotifier()

	mon := monitor.New(monitor.Options{
		Enabled:       a.Config.Monitor.Enabled,
		Interval:      a.Config.Monitor.Interval,
		AlertCooldown: a.Config.Monitor.AlertCooldown,
		HistoryCap:    a.Config.Monitor.HistoryCap,
	}, fair, book, st, tornapi.StoreCredentials{Store: st}, notifier, a.Logger)

	sched := scheduler.New(scheduler.Options{Interval: time.Second}, a.Logger)
	svc := service.New(sched, mon, fair, cat, a.Logger)

	a.Logger.Info().Msg("starting watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch service stopped")
	return nil
}

// ScanOptions configure a page scan.
type ScanOptions struct {
	Path           string
	Follow         bool
	ShowOnlyDeals  bool
	HideOverpriced bool
}

// ExportOptions hold parameters for exporting an item's price history.
type ExportOptions struct {
	ItemID    int64
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
