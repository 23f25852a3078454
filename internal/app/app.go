// Package app assembles the runtime: guarded connector, risk gate,
// adjustment engine, trading loops, watchdog and the status HTTP surface.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bastion/internal/adjust"
	"bastion/internal/config"
	"bastion/internal/gateway"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/notifier"
	"bastion/internal/logger"
	"bastion/internal/pkg/circuit"
	"bastion/internal/profile"
	"bastion/internal/risk"
	"bastion/internal/store"
	"bastion/internal/store/gormstore"
	"bastion/internal/symbols"
	"bastion/internal/transport/http/status"
	"bastion/internal/watchdog"
	"bastion/internal/worker"
)

// App is the assembled runtime.
type App struct {
	cfg      *config.Config
	conn     broker.Connector
	db       store.Store
	notify   notifier.TextNotifier
	profiles *profile.Registry
	breakers *circuit.Registry
	dog      *watchdog.Watchdog
	manager  *symbols.Manager
	httpSrv  *status.Server
}

// New wires every component from config. Nothing runs yet; Run starts the
// loops.
func New(cfg *config.Config) (*App, error) {
	breakers := circuit.NewRegistry(func(err error) bool {
		return !broker.CountsAsCircuitFailure(err)
	})

	profiles, err := profile.NewRegistry(cfg.Profiles.Path)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	rawConn, err := gateway.NewConnectorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init broker backend: %w", err)
	}
	conn := broker.NewGuarded(rawConn, breakers)

	rawStore, err := gormstore.NewGormStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db := store.NewGuarded(rawStore, breakers)

	var notify notifier.TextNotifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewGuarded(
			notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID),
			breakers)
	}

	dog := watchdog.New(
		time.Duration(cfg.Watchdog.PollSeconds)*time.Second,
		time.Duration(cfg.Watchdog.TimeoutSeconds)*time.Second)
	dog.SetFrozenHandler(func(name string, silence time.Duration) {
		if g, ok := notify.(*notifier.Guarded); ok {
			g.SendAsync(fmt.Sprintf("Loop %s frozen, no heartbeat for %s", name, silence))
		}
	})

	breakers.SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.Warnf("circuit %s: %s -> %s", name, from, to)
		if to == circuit.StateOpen {
			if g, ok := notify.(*notifier.Guarded); ok {
				g.SendAsync(fmt.Sprintf("Circuit %s opened", name))
			}
		}
	})

	gate := risk.NewGate(cfg.Risk, db)
	spread := adjust.NewSpreadClassifier(cfg.Spread)
	engine := adjust.NewEngine(cfg.Adjust, spread)
	provider := worker.NewEMACrossProvider()

	manager, err := symbols.NewManager(cfg, conn, gate, engine, spread, profiles, db, notify, dog, breakers, provider)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		conn:     conn,
		db:       db,
		notify:   notify,
		profiles: profiles,
		breakers: breakers,
		dog:      dog,
		manager:  manager,
		httpSrv:  status.NewServer(cfg.App.HTTPAddr, manager),
	}, nil
}

// Run connects the terminal, starts every loop plus the HTTP surface, and
// blocks until a signal or fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect terminal: %w", err)
	}
	logger.Infof("app: connected to %s, %d instruments, strategies: %v",
		a.conn.Name(), len(a.cfg.Instruments), a.profiles.Snapshot().Names())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(gctx) })
	g.Go(func() error { return a.httpSrv.Start(gctx) })

	err := g.Wait()
	if closeErr := a.db.Close(); closeErr != nil {
		logger.Warnf("app: store close: %v", closeErr)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Infof("app: shut down")
	return nil
}
