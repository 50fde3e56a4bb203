package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pvzzle/buywatch/internal/chain"
	"github.com/pvzzle/buywatch/internal/clock"
	"github.com/pvzzle/buywatch/internal/ethwatch"
	"github.com/pvzzle/buywatch/internal/feed"
	"github.com/pvzzle/buywatch/internal/health"
	"github.com/pvzzle/buywatch/internal/notify"
	"github.com/pvzzle/buywatch/internal/reminder"
	"github.com/pvzzle/buywatch/internal/storage"
	"github.com/pvzzle/buywatch/internal/storage/pg"
	"github.com/pvzzle/buywatch/internal/tg"

	"github.com/cenkalti/backoff/v4"
	tgbot "github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return &ConfigError{Field: "LOG_LEVEL", Err: err}
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	repo, closeRepo, err := openJournal(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer closeRepo()

	client, err := dialChain(ctx, cfg, log.Named("chain"))
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	b, err := newBot(ctx, cfg, log.Named("tg"))
	if err != nil {
		return err
	}

	branding := cfg.Branding()
	tgSvc := tg.NewService(b, cfg.ChatID, branding, log.Named("tg"))

	dispatcher := notify.NewDispatcher(tgSvc, repo, log.Named("notify"), notify.Config{
		Buffer:  cfg.NotifyBuffer,
		Timeout: cfg.SendTimeout,
		Limit:   cfg.SendLimit(),
		Burst:   1,
	})

	watcher := ethwatch.NewWatcher(client, dispatcher, repo, log.Named("watcher"), ethwatch.WatcherConfig{
		Contract:    cfg.ContractAddress(),
		Topic:       cfg.Topic(),
		MinValueWei: cfg.MinValueWei(),
		Mode:        ethwatch.Mode(cfg.ScanMode),
		Lookback:    cfg.LookbackBlocks,
		Workers:     cfg.WatcherWorkers,
		RetryDelay:  cfg.RetryDelay,
		ChainID:     chainID.String(),
		Branding:    branding,
	})

	feedLog := log.Named("feed")
	poller := feed.NewPoller(cfg.PollInterval, clock.Real{}, feedLog)
	source := feed.Select(cfg.RPCURL, client, poller, feedLog, feed.SupervisorConfig{
		Backoff: feed.NewBackoff(cfg.ReconnectDelay, cfg.ReconnectMaxDelay),
		OnState: func(st feed.State) { feedLog.Debugw("feed state", "state", st.String()) },
	})
	ticks := feed.NewMailbox()

	reminders := reminder.New(dispatcher, reminder.Text(ethwatch.FormatReminder(branding)), log.Named("reminder"), reminder.Config{
		FirstDelay: cfg.ReminderFirstDelay,
		Interval:   cfg.ReminderInterval,
	})

	healthSrv := health.NewServer(cfg.Port, cfg.ProjectName, log.Named("health"))

	log.Infow("started",
		"chain_id", chainID.String(),
		"contract", cfg.ContractAddress().Hex(),
		"min_purchase", cfg.MinPurchase,
		"source", source.Name(),
		"mode", cfg.ScanMode,
		"journal", repo,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return source.Run(gctx, ticks) })
	g.Go(func() error { return watcher.Run(gctx, ticks.C()) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return reminders.Run(gctx) })
	g.Go(func() error { return tgSvc.Start(gctx) })
	g.Go(func() error { return healthSrv.Run(gctx) })

	return g.Wait()
}

// dialChain keeps trying until the node answers or ctx ends. The node being
// down at boot is not a reason to exit.
func dialChain(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*chain.Client, error) {
	var client *chain.Client
	op := func() error {
		c, err := chain.Dial(ctx, chain.Config{
			URL:     cfg.RPCURL,
			ReadURL: cfg.RPCReadURL,
			Timeout: cfg.RPCTimeout,
		})
		if err != nil {
			return err
		}
		client = c
		return nil
	}

	b := backoff.WithContext(feed.NewBackoff(cfg.ReconnectDelay, cfg.ReconnectMaxDelay), ctx)
	err := backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		log.Warnw("rpc dial failed", "retry_in", next, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

// newBot retries the getMe check until Telegram answers. A rejected token is
// permanent.
func newBot(ctx context.Context, cfg Config, log *zap.SugaredLogger, opts ...tgbot.Option) (*tgbot.Bot, error) {
	opts = append([]tgbot.Option{
		tgbot.WithNotAsyncHandlers(),
		tgbot.WithErrorsHandler(func(err error) {
			log.Warnw("telegram polling error", "error", err)
		}),
	}, opts...)

	var b *tgbot.Bot
	op := func() error {
		bot, err := tgbot.New(cfg.TelegramToken, opts...)
		if err != nil {
			if errors.Is(err, tgbot.ErrorUnauthorized) {
				return backoff.Permanent(err)
			}
			return err
		}
		b = bot
		return nil
	}

	bo := backoff.WithContext(feed.NewBackoff(cfg.ReconnectDelay, cfg.ReconnectMaxDelay), ctx)
	err := backoff.RetryNotify(op, bo, func(err error, next time.Duration) {
		log.Warnw("telegram bot init failed", "retry_in", next, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return b, nil
}

type journal interface {
	storage.Repository
	fmt.Stringer
}

type nopJournal struct{ storage.Nop }

func (nopJournal) String() string { return "none" }

func openJournal(ctx context.Context, url string) (journal, func(), error) {
	if url == "" {
		return nopJournal{}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool new: %w", err)
	}

	repo := pg.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, pool.Close, nil
}
