package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/mobile-seat-admission/internal/config"
	"github.com/iliyamo/mobile-seat-admission/internal/handler"
	"github.com/iliyamo/mobile-seat-admission/internal/middleware"
	"github.com/iliyamo/mobile-seat-admission/internal/queue"
	"github.com/iliyamo/mobile-seat-admission/internal/repository"
	"github.com/iliyamo/mobile-seat-admission/internal/router"
	"github.com/iliyamo/mobile-seat-admission/internal/service"
	"github.com/iliyamo/mobile-seat-admission/internal/session"
)

func newServeCmd() *cobra.Command {
	var noConsumer bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the activity consumer and the seat reaper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, !noConsumer)
		},
	}
	cmd.Flags().BoolVar(&noConsumer, "no-consumer", false, "do not consume the activity queue in this process")
	return cmd
}

func serve(ctx context.Context, withConsumer bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		return err
	}
	rdb := config.NewRedisClient(redisCfg, a.log)
	if rdb != nil {
		defer rdb.Close()
	}
	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}

	tokens := repository.NewActiveTokenRepo(rdb)
	publisher := service.NewActivityPublisher(a.cfg.RabbitMQURL, a.log)
	defer publisher.Close()

	mobile := handler.NewMobileHandler(a.manager, repository.NewUserRepo(a.db), tokens, publisher,
		a.cfg.JWTSecret, a.cfg.MobileTokenTTL(), a.log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	router.RegisterRoutes(e, a.registry)
	router.RegisterMobile(e, mobile, a.cfg.JWTSecret, tokens, middleware.NewTokenBucket(rl, rdb, a.log))
	a.log.Info().Bool("enabled", rl.Enabled && rdb != nil).Str("limit", middleware.DescribeLimit(rl)).Msg("rate limiter")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + a.cfg.Port
		a.log.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return publisher.Run(ctx) })
	if withConsumer {
		g.Go(func() error {
			// consumer failures are logged, the API keeps serving
			if err := queue.StartActivityConsumer(ctx, a.cfg.RabbitMQURL, a.cfg.ActivityLogPath, a.log); err != nil {
				a.log.Error().Err(err).Msg("activity consumer stopped")
			}
			return nil
		})
	}
	if a.cfg.ReapEnabled {
		reaper := &session.Reaper{
			Manager:       a.manager,
			Interval:      a.cfg.ReapInterval,
			InactiveAfter: a.cfg.ReapInactiveAfter,
			Log:           a.log,
		}
		g.Go(func() error { return reaper.Run(ctx) })
	}

	return g.Wait()
}
