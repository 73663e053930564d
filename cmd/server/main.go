// Package main is the entry point for the oracle yield-curve service. It serves the yield
// curve computed from published oracle entries to HTTP clients and Chainlink nodes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/aggregate"
	"github.com/yourorg/oracle-yield-curve/internal/config"
	"github.com/yourorg/oracle-yield-curve/internal/export"
	"github.com/yourorg/oracle-yield-curve/internal/metrics"
	"github.com/yourorg/oracle-yield-curve/internal/oracle"
	"github.com/yourorg/oracle-yield-curve/internal/otel"
	"github.com/yourorg/oracle-yield-curve/internal/security"
	"github.com/yourorg/oracle-yield-curve/internal/server"
	"github.com/yourorg/oracle-yield-curve/internal/validation"
	"github.com/yourorg/oracle-yield-curve/internal/yieldcurve"
)

// main is the entry point for the application
func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.Errorf("Server failed: %v", err)
		stop()
		shutdownTracer()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	keys, err := loadRegistry(cfg.KeysFile)
	if err != nil {
		return err
	}

	mode, err := aggregate.ParseMode(cfg.AggregationMode)
	if err != nil {
		return err
	}

	store, err := oracle.NewStore(oracle.NewPublishers(), oracle.Options{
		DefaultDecimals: cfg.DefaultDecimals,
		MaxEntryAge:     cfg.MaxEntryAge,
		Validation: validation.ValidationOptions{
			MaxAge:        cfg.MaxEntryAge,
			MaxFutureSkew: cfg.MaxFutureSkew,
		},
		RequireSignatures: cfg.RequireSignatures,
		Mode:              mode,
		Metrics:           m,
	})
	if err != nil {
		return err
	}

	engine := yieldcurve.NewEngine(store, keys, yieldcurve.Options{
		MaxSpotFutureSkew: cfg.MaxSpotFutureSkew,
		Metrics:           m,
	})

	attestor, err := security.NewAttestor(cfg.AttestationKey)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Curve:    engine,
		Store:    store,
		Registry: keys,
		Attestor: attestor,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
	}

	if cfg.WebhookURL != "" {
		exporter, err := export.New(export.Config{
			WebhookURL:     cfg.WebhookURL,
			WebhookAPIKey:  cfg.WebhookAPIKey,
			Interval:       cfg.ExportInterval,
			OutputDecimals: cfg.OutputDecimals,
			Timeout:        cfg.RequestTimeout,
		}, engine, m)
		if err != nil {
			return err
		}
		exporter.Start(ctx)
		defer exporter.Stop()
		deps.Exporter = exporter
	}

	srv := server.New(server.Config{
		Port:           cfg.Port,
		AdminAPIKey:    cfg.AdminAPIKey,
		OutputDecimals: cfg.OutputDecimals,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, deps)

	return srv.Serve(ctx)
}
