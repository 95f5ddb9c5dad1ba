package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/api"
	"github.com/azzy787/task-board-mvp/app"
	"github.com/azzy787/task-board-mvp/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board, err := app.New(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("board: %v", err)
	}
	defer board.Close(context.Background())
	go func() {
		if err := board.Run(ctx); err != nil {
			log.WithError(err).Error("background jobs stopped")
			stop()
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))
	e.Use(echoprometheus.NewMiddleware("board"))
	e.Use(api.GzipRequestMiddleware(api.MaxInflatedBody))
	e.GET("/metrics", echoprometheus.NewHandler())

	logger := log.StandardLogger()
	api.Register(e, board.Deps(), logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()
	log.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Backend, "board": cfg.BoardID}).Info("board service started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
}
