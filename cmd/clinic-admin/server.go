package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/pedsclinic/clinicadmin/internal/domain/diagnosis"
	"github.com/pedsclinic/clinicadmin/internal/domain/lab"
	"github.com/pedsclinic/clinicadmin/internal/domain/scheduling"
	"github.com/pedsclinic/clinicadmin/internal/platform/audit"
	"github.com/pedsclinic/clinicadmin/internal/platform/auth"
	"github.com/pedsclinic/clinicadmin/internal/platform/db"
	"github.com/pedsclinic/clinicadmin/internal/platform/middleware"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin console API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(a)
		},
	}
}

// newServer builds the console. The domain services, and the slice state
// they hold, are shared by every request, like the single store of the
// browser front-end.
func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())

	var origins []string
	timeout := 30 * time.Second
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if a.cfg != nil {
		origins = a.cfg.CORSOrigins
		timeout = 2 * a.cfg.RequestTimeout()
		if a.cfg.RateLimitRPS > 0 {
			rateLimitCfg = middleware.RateLimitConfig{
				RequestsPerSecond: a.cfg.RateLimitRPS,
				BurstSize:         a.cfg.RateLimitBurst,
			}
		}
	}
	if len(origins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		}))
	}
	e.Use(middleware.BodyLimit("1M", "20M"))
	e.Use(auth.Bearer(a.session))
	e.Use(auth.RequireToken(a.session))
	e.Use(middleware.Audit(a.logger, a.journal))

	var pinger db.Pinger
	if a.pool != nil {
		pinger = a.pool
	}
	e.GET("/health", db.HealthHandler(version, pinger))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.RequestTimeout(timeout))

	auth.NewHandler(a.session, a.client, a.persistTokens, a.logger).RegisterRoutes(api)
	audit.NewHandler(a.journal).RegisterRoutes(api)

	lab.NewHandler(a.labSvc).RegisterRoutes(api)
	diagnosis.NewHandler(a.diagSvc).RegisterRoutes(api)
	scheduling.NewHandler(a.schedSvc).RegisterRoutes(api)

	return e
}

func runServer(a *app) error {
	e := newServer(a)

	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Str("backend", a.cfg.APIBaseURL).Msg("starting console")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info().Msg("shutting down console")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		a.logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	a.logger.Info().Msg("console stopped")
	return nil
}
