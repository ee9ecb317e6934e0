// Package cli implements the event-export command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Log-Tools/commerce-events-export/internal/config"
	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/export"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// app holds what the commands share. Tests replace connect and logOut.
type app struct {
	configPath string
	logLevel   string

	logOut  io.Writer
	connect func(cfg *config.Config, logger logrus.FieldLogger) (topic.Connector, error)
}

func newApp() *app {
	return &app{logOut: os.Stderr, connect: connectorFor}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "event-export",
		Short: "Export analytics events to a message topic",
		Long: `Provisions an export topic and publishes analytics events to it,
one message per event, in the canonical export format.

Examples:
  # Run the exporter against the configured source topic
  event-export serve --config export.yaml

  # Create the export topic if it is missing
  event-export provision

  # Show what would be provisioned
  event-export provision --dry-run

  # Re-export events from a newline-delimited JSON file
  event-export replay --file events.ndjson --batch-size 500

  # Print the base64 form of a topic name for GCP_TOPIC_ID
  event-export encode-topic commerce-events`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newProvisionCmd(a),
		newReplayCmd(a),
		newEncodeTopicCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load reads the configuration and builds a logger at the configured level.
func (a *app) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(a.logOut)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(cfg.Level())
	if a.logLevel != "" {
		level, err := logrus.ParseLevel(a.logLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		logger.SetLevel(level)
	}

	return cfg, logger, nil
}

// loadCredentials returns empty credentials when no source is configured so
// that provisioning reports the missing blob as a configuration error.
func loadCredentials(ctx context.Context, cfg *config.Config) (credentials.Credentials, error) {
	src, err := cfg.CredentialSource()
	if err != nil {
		return credentials.Credentials{}, export.InvalidCredentials(fmt.Errorf("failed to set up credential source: %w", err))
	}
	if src == nil {
		return credentials.Credentials{}, nil
	}
	creds, err := credentials.Load(ctx, src)
	if err != nil {
		return credentials.Credentials{}, export.InvalidCredentials(err)
	}
	return creds, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
