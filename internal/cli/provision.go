package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Log-Tools/commerce-events-export/internal/config"
	"github.com/Log-Tools/commerce-events-export/internal/export"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
	jstopic "github.com/Log-Tools/commerce-events-export/internal/topic/jetstream"
)

func newProvisionCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the export topic if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			if dryRun {
				return printPlan(ctx, cmd.OutOrStdout(), cfg)
			}

			handle, err := a.provision(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if err := handle.Close(); err != nil {
				logger.WithError(err).Warn("⚠️ Failed to close topic client")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Topic %s is ready\n", handle.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be provisioned without connecting")
	return cmd
}

// provision loads credentials and makes sure the configured topic exists.
func (a *app) provision(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (topic.Handle, error) {
	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	connector, err := a.connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	return export.NewProvisioner(connector, logger).Provision(ctx, creds, cfg.Topic.ID)
}

func printPlan(ctx context.Context, w io.Writer, cfg *config.Config) error {
	name, err := topic.DecodeID(cfg.Topic.ID)
	if err != nil {
		return fmt.Errorf("invalid topic id: %w", err)
	}

	fmt.Fprintf(w, "🔧 Provisioning plan:\n")
	fmt.Fprintf(w, "  Transport: %s\n", cfg.Transport)
	fmt.Fprintf(w, "  Topic: %s\n", name)

	creds, err := loadCredentials(ctx, cfg)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  Credentials: error: %v\n", err)
	case creds.ProjectID == "":
		fmt.Fprintf(w, "  Credentials: not configured\n")
	default:
		fmt.Fprintf(w, "  Credentials: %s\n", creds)
	}

	switch cfg.Transport {
	case config.TransportPubSub:
		if cfg.PubSub.EmulatorHost != "" {
			fmt.Fprintf(w, "  Emulator: %s\n", cfg.PubSub.EmulatorHost)
		}
	case config.TransportKafka:
		fmt.Fprintf(w, "  Brokers: %s\n", cfg.Kafka.Brokers)
		fmt.Fprintf(w, "  Partitions: %d\n", cfg.Topic.Partitions)
		fmt.Fprintf(w, "  Replication factor: %d\n", cfg.Topic.ReplicationFactor)
		keys := make([]string, 0, len(cfg.Topic.Config))
		for key := range cfg.Topic.Config {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %s\n", key, cfg.Topic.Config[key])
		}
	case config.TransportJetStream:
		fmt.Fprintf(w, "  URL: %s\n", cfg.JetStream.URL)
		fmt.Fprintf(w, "  Stream: %s\n", jstopic.StreamName(name))
		fmt.Fprintf(w, "  Storage: %s\n", cfg.JetStream.Storage)
		if cfg.JetStream.MaxAge > 0 {
			fmt.Fprintf(w, "  Max age: %s\n", cfg.JetStream.MaxAge)
		}
	case config.TransportOpenSearch:
		fmt.Fprintf(w, "  Addresses: %s\n", strings.Join(cfg.OpenSearch.Addresses, ", "))
		fmt.Fprintf(w, "  Shards: %d\n", cfg.Topic.Partitions)
		fmt.Fprintf(w, "  Replicas: %d\n", cfg.Topic.ReplicationFactor-1)
	}
	return nil
}
