package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/courier/internal/api"
	"github.com/mattjoyce/courier/internal/auth"
	"github.com/mattjoyce/courier/internal/config"
	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/lock"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/protocol"
	"github.com/mattjoyce/courier/internal/scheduler"
	"github.com/mattjoyce/courier/internal/session"
	"github.com/mattjoyce/courier/internal/state"
	"github.com/mattjoyce/courier/internal/storage"
)

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("courier starting", "version", version, "config", cfg.Path, "verified", cfg.Verified)

	pidLock, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	if err != nil {
		logger.Error("another instance is running", "error", err)
		return 1
	}
	defer func() { _ = pidLock.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newApp(ctx, cfg, log.Get())
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		rt.recorder.Run(ctx, cfg.Service.StatsFlushInterval)
	}()

	if cfg.API.Enabled {
		srv := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: apiTokens(cfg.API.Auth.Tokens),
		}, rt.conn, rt.hub, log.Get())
		go func() {
			if err := srv.Start(ctx); err != nil {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("courier running (press Ctrl+C to stop)", "sessions", len(cfg.Sessions), "workers", cfg.Pool.Workers)

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}

	cancel()
	<-statsDone
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Pool.ShutdownTimeout)
	defer stop()
	if err := rt.close(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		code = 1
	}

	logger.Info("courier stopped")
	return code
}

// app is everything serve wires together.
type app struct {
	db       *sql.DB
	hub      *events.Hub
	pool     *scheduler.Pool
	conn     *session.Connection
	recorder *state.Recorder
}

// newApp opens storage, starts the pool and creates and starts the
// configured sessions.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rt := &app{
		db:       db,
		hub:      events.NewHub(256),
		recorder: state.NewRecorder(state.NewStore(db), logger),
	}
	rt.pool = scheduler.NewPool(scheduler.PoolConfig{
		Workers:             cfg.Pool.Workers,
		MaxIterationsPerRun: cfg.Pool.MaxIterationsPerRun,
	}, logger)
	rt.pool.Start()

	rt.conn = session.NewConnection(rt.pool,
		session.WithLogger(logger),
		session.WithPublisher(rt.hub),
		session.WithShutdownTimeout(cfg.Pool.ShutdownTimeout),
		session.WithDispatchOptions(
			dispatch.WithOnDeliver(rt.recorder.OnDeliver),
			dispatch.WithOnDeliver(rt.publishDelivery),
			dispatch.WithOnDrop(rt.recorder.OnDrop),
			dispatch.WithOnDrop(rt.publishDrop),
		),
	)

	if err := rt.createSessions(ctx, cfg.Sessions, logger); err != nil {
		_ = rt.close(ctx)
		return nil, err
	}
	if err := rt.conn.Start(ctx); err != nil {
		_ = rt.close(ctx)
		return nil, fmt.Errorf("start sessions: %w", err)
	}
	return rt, nil
}

func (rt *app) createSessions(ctx context.Context, sessions []config.SessionConfig, logger *slog.Logger) error {
	for _, sc := range sessions {
		s, err := rt.conn.CreateSession(ctx, session.Options{
			ID:               sc.Name,
			AsyncDispatch:    sc.AsyncDispatch,
			DispatchedByPool: sc.DispatchedByPool,
		})
		if err != nil {
			return fmt.Errorf("session %s: %w", sc.Name, err)
		}
		for _, cc := range sc.Consumers {
			l := logger.With("component", "sink", "session_id", sc.Name, "consumer_id", cc.ID)
			listener, err := session.NewSinkListener(cc.Sink, l, rt.hub)
			if err != nil {
				return fmt.Errorf("session %s consumer %s: %w", sc.Name, cc.ID, err)
			}
			if _, err := s.CreateConsumer(protocol.ConsumerID(cc.ID), listener); err != nil {
				return fmt.Errorf("session %s: %w", sc.Name, err)
			}
		}
	}
	return nil
}

func apiTokens(tokens []config.TokenConfig) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

func (rt *app) publishDelivery(info dispatch.DeliveryInfo) {
	data := map[string]any{
		"session_id":  info.SessionID,
		"consumer_id": info.ConsumerID,
		"message_id":  info.Message.ID,
		"duration_ms": info.Duration.Milliseconds(),
	}
	if info.Err != nil {
		data["error"] = info.Err.Error()
		rt.hub.Publish(events.MessageFailed, data)
		return
	}
	rt.hub.Publish(events.MessageDelivered, data)
}

func (rt *app) publishDrop(sessionID string, msg *protocol.Message) {
	rt.hub.Publish(events.MessageDropped, map[string]any{
		"session_id":  sessionID,
		"consumer_id": msg.ConsumerID,
		"message_id":  msg.ID,
	})
}

// close tears down in dependency order: sessions, pool, final stats, db.
func (rt *app) close(ctx context.Context) error {
	var errs []error
	if err := rt.conn.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := rt.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop pool: %w", err))
	}
	if err := rt.recorder.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush stats: %w", err))
	}
	if err := rt.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
