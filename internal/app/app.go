package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"caucion-alerts/internal/alerting"
	"caucion-alerts/internal/config"
	"caucion-alerts/internal/fetcher"
	"caucion-alerts/internal/scheduler"
	"caucion-alerts/internal/service"
	"caucion-alerts/internal/storage"
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

func (a *App) newFetcher() fetcher.RateFetcher {
	return fetcher.NewIOL(fetcher.IOLOptions{
		BaseURL:  a.Config.IOL.BaseURL,
		Username: a.Config.IOL.Username,
		Password: a.Config.IOL.Password,
		Timeout:  a.Config.IOL.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
}

func (a *App) newStateStore() storage.StateStore {
	return storage.NewFileStateStore(a.Config.State.Path, a.Config.State.LockTimeout)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(ctx context.Context) (*service.Service, func(), error) {
	rules, err := a.Config.Rules()
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; rate history disabled")
	}

	var history storage.ObservationStore
	var alertLog storage.AlertLogStore
	if store != nil {
		history = store
		alertLog = store
	}

	var dispatcher *alerting.Dispatcher
	if notifier := a.newNotifier(); notifier != nil {
		dispatcher = alerting.NewDispatcher(notifier, a.Logger)
	} else {
		a.Logger.Warn().Msg("telegram disabled; fired alerts will only be logged")
	}

	svc := service.New(rules, a.newFetcher(), a.newStateStore(), dispatcher, history, alertLog, a.Logger)
	return svc, closeStore, nil
}

// Check executes one run: fetch, evaluate, notify, persist, exit.
func (a *App) Check(ctx context.Context) error {
	svc, closeStore, err := a.newService(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := svc.RunCheck(ctx); err != nil {
		a.notifyError(ctx, err)
		return err
	}
	return nil
}

// notifyError reports a fatal run failure through the alert channel,
// best-effort: the run is already failing, so a delivery problem is only
// logged.
func (a *App) notifyError(ctx context.Context, runErr error) {
	notifier := a.newNotifier()
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, alerting.RenderError(runErr)); err != nil {
		a.Logger.Error().Err(err).Msg("failed to send error notification")
	}
}

// Watch re-runs the check on an aligned interval, for hosts without cron.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeStore, err := a.newService(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if a.Config.Telegram.StartupMessage {
		if notifier := a.newNotifier(); notifier != nil {
			if err := notifier.Notify(ctx, alerting.RenderStartup()); err != nil {
				a.Logger.Error().Err(err).Msg("failed to send startup message")
			}
		}
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToTick,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch loop")
	err = sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
		if err := svc.RunCheck(ctx); err != nil {
			a.notifyError(ctx, err)
			return err
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}

// ExportOptions hold parameters for exporting rate history.
type ExportOptions struct {
	Days      int
	RateType  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
