package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Domenick1991/staybooking/config"
	"github.com/Domenick1991/staybooking/internal/bootstrap"
	"github.com/Domenick1991/staybooking/internal/cli"
	"github.com/Domenick1991/staybooking/internal/logger"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"go.opentelemetry.io/otel"
)

func main() {
	load := func(ctx context.Context) (*cli.Backend, error) {
		cfg, err := config.LoadConfig(config.Path())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		log := logger.New(cfg.Log)
		components, err := bootstrap.Wire(ctx, cfg, log, otel.Tracer("schedulectl"))
		if err != nil {
			return nil, err
		}
		return &cli.Backend{
			Calendar:  components.Calendar,
			Index:     components.Coordinator,
			JWTSecret: []byte(cfg.Auth.JWTSecret),
			Close:     components.Close,
		}, nil
	}

	// --memory needs no database; the config file is optional and only supplies the JWT secret
	// and log settings.
	loadMemory := func(context.Context) (*cli.Backend, error) {
		cfg, err := config.LoadConfig(config.Path())
		if err != nil {
			cfg = &config.Config{}
			cfg.ApplyDefaults()
		}
		return cli.NewMemoryBackend(memory.NewStore(), []byte(cfg.Auth.JWTSecret), logger.New(cfg.Log)), nil
	}

	if err := cli.NewRootCmd(load, cli.WithMemoryBackend(loadMemory)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
