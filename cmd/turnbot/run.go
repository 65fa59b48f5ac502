package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jdelaire/turnbot/adapters/telegram_client"
	"github.com/jdelaire/turnbot/adapters/telegram_receiver"
	"github.com/jdelaire/turnbot/adapters/telegram_webhook"
	"github.com/jdelaire/turnbot/core"
	"github.com/jdelaire/turnbot/core/commands"
	"github.com/jdelaire/turnbot/core/policy"
	"github.com/jdelaire/turnbot/core/ratelimit"
	"github.com/jdelaire/turnbot/internal/config"
	"github.com/jdelaire/turnbot/internal/configwatch"
	"github.com/jdelaire/turnbot/internal/keychain"
)

const (
	shutdownTimeout = 10 * time.Second
	reloadDebounce  = 500 * time.Millisecond
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Receive updates and run conversations until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ResolveToken(keychain.BotToken); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, configPath(cmd), cfg.NewLogger(os.Stderr))
		},
	}
}

func run(ctx context.Context, cfg *config.Config, configFile string, logger *slog.Logger) error {
	client, err := telegram_client.New(cfg.Token)
	if err != nil {
		return err
	}

	botName := cfg.BotName
	if botName == "" {
		me, err := client.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("get bot identity: %w", err)
		}
		botName = me.Username
	}
	logger = logger.With("bot", botName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := core.MustNewMetrics(reg)
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	reloader := config.NewReloader(cfg.Replies, logger)
	router := commands.NewRouter(cfg.Prefix())
	app := newBot(client, router, reloader.Replies, logger)
	app.botName = botName
	if err := app.register(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	opts := append(app.options(),
		core.WithLogger(logger),
		core.WithRouter(router),
		core.WithBotName(botName),
		core.WithCallbackAnswerer(client),
		core.WithAutoAnswerCallbacks(cfg.Callbacks.AutoAnswer),
		core.WithMaxSessions(cfg.Sessions.Max),
		core.WithMetrics(metrics),
		core.WithPolicy(policy.New(
			policy.WithAllowedChats(cfg.Policy.AllowedChats...),
			policy.WithFreshness(cfg.Policy.Freshness),
			policy.WithDedupSize(cfg.Policy.DedupSize),
			policy.WithRateLimit(ratelimit.New(
				cfg.Policy.RateLimit.Max, cfg.Policy.RateLimit.Window, cfg.Policy.RateLimit.Lockout,
			)),
		)),
	)
	d, err := core.NewDispatcher(opts...)
	if err != nil {
		return err
	}
	app.sessions = d.Sessions

	if err := client.SetMyCommands(ctx, router.BotCommands()); err != nil {
		logger.Warn("publish command list failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.Mode {
	case config.ModePoll:
		// getUpdates is refused while a webhook is registered.
		if err := client.DeleteWebhook(ctx, false); err != nil {
			logger.Warn("delete webhook failed", "error", err)
		}
		recv := telegram_receiver.New(client, d.HandleUpdate, logger,
			telegram_receiver.WithPollTimeout(cfg.Poll.Timeout),
			telegram_receiver.WithErrorBackoff(cfg.Poll.Backoff),
			telegram_receiver.WithOnError(func(error) { metrics.FetchError() }),
		)
		g.Go(func() error { return recv.Start(gctx) })
		if cfg.Metrics.Enabled {
			g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Listen, metricsHandler, logger) })
		}

	case config.ModeWebhook:
		whOpts := []telegram_webhook.Option{
			telegram_webhook.WithPath(cfg.Webhook.Path),
			telegram_webhook.WithSecret(cfg.Webhook.Secret),
		}
		if cfg.Metrics.Enabled {
			whOpts = append(whOpts, telegram_webhook.WithMetricsHandler(metricsHandler))
		}
		srv := telegram_webhook.New(cfg.Webhook.Listen, d.HandleUpdate, logger, whOpts...)
		if err := srv.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			var serveErr error
			select {
			case <-gctx.Done():
			case serveErr = <-srv.Err():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
				return err
			}
			return serveErr
		})
	}

	if configFile != "" {
		w := configwatch.New(reloadDebounce, logger)
		w.Watch(configFile, reloader.Reload)
		g.Go(func() error { return w.Run(gctx) })
	}

	logger.Info("turnbot running", "mode", cfg.Mode, "prefix", string(cfg.Prefix()))
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := d.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("conversations still running at exit", "error", serr)
	}
	logger.Info("turnbot stopped")
	return err
}

// serveMetrics exposes the prometheus registry in polling mode, where there is
// no webhook server to mount it on.
func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
