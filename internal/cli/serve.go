package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Log-Tools/commerce-events-export/internal/config"
	"github.com/Log-Tools/commerce-events-export/internal/export"
	"github.com/Log-Tools/commerce-events-export/internal/server"
	"github.com/Log-Tools/commerce-events-export/internal/source"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Provision the topic and export events from the source topic",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateSource(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()
			return a.serve(ctx, cfg, logger)
		},
	}
}

func (a *app) serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the ops server comes up first so /readyz reports provisioning
	readiness := &server.Readiness{}
	srv := server.New(cfg.Server.Addr, readiness, logger)
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Run(ctx) }()

	err := a.runExport(ctx, cfg, logger, readiness)
	cancel()

	if srvErr := <-srvDone; srvErr != nil {
		logger.WithError(srvErr).Error("❌ Ops server failed")
		if err == nil {
			err = srvErr
		}
	}
	return err
}

func (a *app) runExport(ctx context.Context, cfg *config.Config, logger *logrus.Logger, readiness *server.Readiness) error {
	handle, err := a.provision(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.WithError(err).Warn("⚠️ Failed to close topic client")
		}
	}()
	readiness.MarkReady(handle.Name())

	consumer, err := source.NewKafkaConsumer(source.ConsumerConfig{
		Brokers:         cfg.Source.Brokers,
		ConsumerGroup:   cfg.Source.ConsumerGroup,
		AutoOffsetReset: cfg.Source.AutoOffsetReset,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	worker := source.NewWorker(source.Config{
		Topic:        cfg.Source.Topic,
		BatchSize:    cfg.Source.BatchSize,
		BatchTimeout: cfg.Source.BatchTimeout,
		Retry:        retryPolicy(cfg),
	}, consumer, export.NewExporter(logger), handle, logger)

	return worker.Run(ctx)
}

func retryPolicy(cfg *config.Config) source.Policy {
	return source.Policy{
		Initial:     cfg.Source.Retry.Initial,
		Max:         cfg.Source.Retry.Max,
		MaxAttempts: cfg.Source.Retry.MaxAttempts,
	}
}
