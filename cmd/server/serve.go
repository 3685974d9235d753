package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omnibridge/backend/internal/config"
	httpapi "github.com/omnibridge/backend/internal/http"
	"github.com/omnibridge/backend/internal/ratelimit"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and webhook receiver",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", true, "also drain the outbox in this process when DELIVERY_MODE=outbox")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:     a.store,
		Bridge:    a.bridge,
		Channels:  a.channels,
		Limiter:   ratelimit.NewSlidingWindow(cfg.RateLimitWindow(), cfg.RateLimitMax),
		Directory: a.sync,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.TimeoutHandler(router, cfg.RequestTimeout, `{"error":{"code":"TIMEOUT","message":"Request timed out"}}`),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched := cron.New()
	if cfg.DirectorySyncSchedule != "" {
		if _, err := sched.AddFunc(cfg.DirectorySyncSchedule, func() {
			if _, err := a.sync.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("scheduled directory sync failed")
			}
		}); err != nil {
			return err
		}
		sched.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Str("delivery", cfg.DeliveryMode).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if withWorker && cfg.DeliveryMode == config.DeliveryOutbox {
		g.Go(func() error { return a.outboxWorker().Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		<-sched.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("server stopped")
	return err
}
