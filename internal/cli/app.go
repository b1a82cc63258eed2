package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"gorm.io/gorm"

	"github.com/ripkitten-co/procview"
	"github.com/ripkitten-co/procview/audit"
	"github.com/ripkitten-co/procview/deadletter"
	"github.com/ripkitten-co/procview/events"
	"github.com/ripkitten-co/procview/internal/config"
	"github.com/ripkitten-co/procview/messages"
	"github.com/ripkitten-co/procview/projections"
	"github.com/ripkitten-co/procview/query"
)

// app holds the connections a command works with.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *procview.Store
	bun    *bun.DB
	gorm   *gorm.DB
	redis  goredis.UniversalClient
	ledger *deadletter.Ledger
}

func openApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger, err := cfg.Logger(logOut)
	if err != nil {
		return nil, wrapExit(ExitCommandError, "logger", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, wrapExit(ExitCommandError, "config", err)
	}
	store, err := procview.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, wrapExit(ExitCommandError, "connect", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store, bun: audit.Open(store)}
	if a.gorm, err = deadletter.Open(store); err != nil {
		a.Close()
		return nil, wrapExit(ExitCommandError, "open gorm", err)
	}
	a.ledger = deadletter.NewLedger(a.gorm)
	if err := a.ledger.Migrate(ctx); err != nil {
		a.Close()
		return nil, wrapExit(ExitCommandError, "migrate dead letters", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.gorm != nil {
		if db, err := a.gorm.DB(); err == nil {
			_ = db.Close()
		}
	}
	_ = a.bun.Close()
	a.store.Close()
}

func (a *app) journal() *events.Journal {
	return events.NewJournal(a.store)
}

func (a *app) groupStore(ctx context.Context) (messages.GroupStore, error) {
	switch a.cfg.MessageStore {
	case config.MessageStoreMemory:
		return messages.NewMemoryStore(), nil
	case config.MessageStoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
		}
		a.redis = client
		s := messages.NewRedisStore(client)
		s.SetAppliedRetention(a.cfg.AppliedRetention)
		return s, nil
	default:
		s := messages.NewPostgresStore(a.gorm)
		s.SetAppliedRetention(a.cfg.AppliedRetention)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// subscribers builds the query, audit and messages projections.
func (a *app) subscribers(ctx context.Context) ([]projections.Subscriber, error) {
	dopts := []projections.DispatcherOption{projections.WithDispatchLogger(a.logger)}

	reg, err := query.NewRegistry(
		query.WithLogger(a.logger),
		query.WithErrorMessageLength(a.cfg.ErrorMessageLength),
	)
	if err != nil {
		return nil, err
	}
	q := query.NewProjection(a.store, reg, dopts...)

	if err := audit.New(a.bun).Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate audit: %w", err)
	}
	au, err := audit.NewProjection(a.bun, dopts...)
	if err != nil {
		return nil, err
	}

	groups, err := a.groupStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("message store: %w", err)
	}
	copts := []messages.Option{
		messages.WithLogger(a.logger),
		messages.WithProducer(events.Producer{
			AppName:        a.cfg.AppName,
			AppVersion:     a.cfg.AppVersion,
			ServiceName:    a.cfg.ServiceName,
			ServiceVersion: a.cfg.ServiceVersion,
		}),
	}
	if a.cfg.DestinationsFile != "" {
		r, err := messages.LoadResolver(a.cfg.DestinationsFile)
		if err != nil {
			return nil, err
		}
		copts = append(copts, messages.WithResolver(r))
	}
	m, err := messages.NewProjection(messages.NewCorrelator(groups, a.journal(), copts...), dopts...)
	if err != nil {
		return nil, err
	}

	return []projections.Subscriber{q, au, m}, nil
}

func (a *app) daemon(ctx context.Context) (*projections.Daemon, error) {
	subs, err := a.subscribers(ctx)
	if err != nil {
		return nil, err
	}
	d := projections.NewDaemon(a.store,
		projections.WithPollingInterval(a.cfg.PollInterval),
		projections.WithBatchSize(a.cfg.BatchSize),
		projections.WithMaxRetries(a.cfg.MaxRetries),
		projections.WithNotifications(a.cfg.Notifications),
		projections.WithLogger(a.logger),
		projections.WithDeadLetters(a.ledger),
	)
	for _, s := range subs {
		if err := d.Add(s); err != nil {
			return nil, err
		}
	}
	return d, nil
}
