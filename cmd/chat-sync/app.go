// ABOUTME: Builds the client session: session cache, REST client, push channel and engine
// ABOUTME: Start runs the engine loop and the push channel until the context ends

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/chat-sync/internal/api"
	"github.com/2389/chat-sync/internal/auth"
	"github.com/2389/chat-sync/internal/clock"
	"github.com/2389/chat-sync/internal/config"
	"github.com/2389/chat-sync/internal/dedupe"
	"github.com/2389/chat-sync/internal/engine"
	"github.com/2389/chat-sync/internal/metrics"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/push"
	"github.com/2389/chat-sync/internal/store"
)

const (
	tokenEnvVar     = "CHAT_SYNC_TOKEN"
	dedupeCapacity  = 4096
	shutdownTimeout = 5 * time.Second
)

// app is one configured client session.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.SQLiteStore
	tokens  *auth.Source
	api     *api.Client
	push    *push.Client
	metrics *metrics.Metrics
	engine  *engine.Engine
}

// resolveToken picks the bearer token: config, then CHAT_SYNC_TOKEN or the
// token file, then the cached session.
func resolveToken(ctx context.Context, cfg *config.Config, st store.Store) string {
	if cfg.Auth.Token != "" {
		return cfg.Auth.Token
	}
	path := cfg.Auth.TokenFile
	if path == "" {
		path = auth.DefaultTokenPath()
	}
	if token := auth.LoadToken(tokenEnvVar, path); token != "" {
		return token
	}
	if sess, err := st.LoadSession(ctx); err == nil {
		return sess.Token
	}
	return ""
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening session cache: %w", err)
	}

	tokens := auth.NewSource(resolveToken(ctx, cfg, st))
	if tokens.Token() == "" {
		_ = st.Close()
		return nil, fmt.Errorf("not signed in; run `chat-sync login` first: %w", model.ErrAuthExpired)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var observer push.Observer
	if m != nil {
		observer = m
	}
	pc := push.NewClient(push.Config{
		URL:               cfg.Server.PushURL,
		Token:             tokens.Token(),
		ReconnectInterval: cfg.Push.ReconnectInterval,
		PingInterval:      cfg.Push.PingInterval,
		SendBuffer:        cfg.Push.SendBuffer,
		Dedupe:            dedupe.New(clock.Real{}, cfg.Sync.DedupeWindow, dedupeCapacity),
		Observer:          observer,
	}, logger)

	rest := api.NewClient(cfg.Server.BaseURL, tokens, nil, logger)

	eng := engine.New(engine.Deps{
		API:     rest,
		Push:    pc,
		Events:  pc.Events(),
		Store:   st,
		Tokens:  tokens,
		Metrics: m,
		Logger:  logger,
	}, engine.Options{
		InitialPageSize: cfg.Sync.InitialPageSize,
		OlderPageSize:   cfg.Sync.OlderPageSize,
		TypingTTL:       cfg.Sync.TypingTTL,
		TypingStopDelay: cfg.Sync.TypingStopDelay,
		SweepInterval:   cfg.Sync.SweepInterval,
		SendAckTimeout:  cfg.Sync.SendAckTimeout,
		MaxUploads:      cfg.Sync.MaxUploads,
		SequenceGuard:   cfg.Sync.Ordering == config.OrderingSequence,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		tokens:  tokens,
		api:     rest,
		push:    pc,
		metrics: m,
		engine:  eng,
	}, nil
}

// Start runs the engine, bootstraps the session and connects the push
// channel. The returned context ends when the session does: on ctx
// cancellation, on SessionEnded or when the push channel rejects the
// credentials. wait blocks until everything has stopped.
func (a *app) Start(ctx context.Context, connect bool) (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	ended, _ := a.engine.Bus().Subscribe(ctx, notify.TopicSession)

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := a.engine.Run(ctx); err != nil {
			a.logger.Error("engine stopped", "error", err)
		}
	}()

	stopMetrics := a.serveMetrics()

	pushDone := make(chan struct{})
	wait := func() {
		cancel()
		<-engineDone
		<-pushDone
		stopMetrics()
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing session cache", "error", err)
		}
	}

	err := a.engine.Bootstrap(ctx)
	switch {
	case errors.Is(err, model.ErrAuthExpired):
		close(pushDone)
		wait()
		return nil, nil, err
	case err != nil:
		// A cached session is still usable; the push channel will catch up.
		a.logger.Warn("starting from cached state", "error", err)
	}

	if connect {
		go func() {
			defer close(pushDone)
			if err := a.push.Run(ctx); errors.Is(err, model.ErrAuthExpired) {
				_ = a.engine.Teardown(context.WithoutCancel(ctx))
			}
		}()
	} else {
		close(pushDone)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ended:
				if !ok {
					return
				}
				if n.Kind == notify.SessionEnded {
					cancel()
					return
				}
			}
		}
	}()

	return ctx, wait, nil
}

// serveMetrics exposes the Prometheus endpoint when enabled and returns a
// shutdown func.
func (a *app) serveMetrics() func() {
	if a.metrics == nil {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics listening", "addr", a.cfg.Metrics.Addr, "path", a.cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
