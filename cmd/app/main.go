package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/staybooking/api"
	"github.com/Domenick1991/staybooking/config"
	"github.com/Domenick1991/staybooking/internal/bootstrap"
	"github.com/Domenick1991/staybooking/internal/logger"
	"github.com/Domenick1991/staybooking/internal/tracing"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracing, err := tracing.Init(cfg.Tracing, "staybooking-api")
	if err != nil {
		log.WithError(err).Fatal("init tracing")
	}
	defer shutdownTracing(context.Background())

	components, err := bootstrap.Wire(ctx, cfg, log, tracer)
	if err != nil {
		log.WithError(err).Fatal("wire services")
	}
	defer components.Close()

	components.Coordinator.Start(ctx)
	defer components.Coordinator.Wait()

	router, err := api.NewRouter(api.RouterConfig{
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		DefaultBefore: cfg.Alternatives.MaxDaysBefore,
		DefaultAfter:  cfg.Alternatives.MaxDaysAfter,
	}, components.Calendar, components.Booking, log)
	if err != nil {
		log.WithError(err).Fatal("build router")
	}

	if err := bootstrap.Run(ctx, cfg, router, log); err != nil {
		log.WithError(err).Error("server error")
	}
	stop()
}
