package export

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/metrics"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// Provisioner makes sure the export topic exists before any batch is accepted.
type Provisioner struct {
	connector topic.Connector
	logger    logrus.FieldLogger
}

// NewProvisioner creates a provisioner for the given transport.
func NewProvisioner(connector topic.Connector, logger logrus.FieldLogger) *Provisioner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Provisioner{connector: connector, logger: logger}
}

// Provision opens the topic named by the base64 encodedTopicID and creates it
// when absent. Losing a creation race to another provisioner is not an error.
// The returned handle is owned by the caller and lives for the process lifetime.
func (p *Provisioner) Provision(ctx context.Context, creds credentials.Credentials, encodedTopicID string) (topic.Handle, error) {
	if creds.ProjectID == "" {
		return nil, configErrorf("credentials not provided (no project_id)")
	}
	if encodedTopicID == "" {
		return nil, configErrorf("topic id not provided")
	}
	name, err := topic.DecodeID(encodedTopicID)
	if err != nil {
		return nil, configErrorf("%v", err)
	}

	log := p.logger.WithFields(logrus.Fields{"topic": name, "project": creds.ProjectID})

	t, err := p.connector.Open(ctx, creds, name)
	if err != nil {
		metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, &ProvisioningError{Topic: name, Op: "connect", Err: err}
	}

	outcome, err := ensureTopic(ctx, t, log)
	if err != nil {
		metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		if closeErr := t.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("⚠️ Failed to close topic client after provisioning failure")
		}
		return nil, err
	}

	metrics.ProvisionTotal.WithLabelValues(outcome).Inc()
	log.WithField("outcome", outcome).Info("✅ Topic ready")
	return t, nil
}

func ensureTopic(ctx context.Context, t topic.Topic, log logrus.FieldLogger) (string, error) {
	err := t.Probe(ctx)
	if err == nil {
		return metrics.OutcomeExisting, nil
	}
	// Anything but "not found" is a transport, auth or permission problem and
	// must not turn into a creation attempt.
	if !errors.Is(err, topic.ErrNotFound) {
		return "", &ProvisioningError{Topic: t.Name(), Op: "probe", Err: err}
	}

	log.Infof("Creating topic %s", t.Name())

	err = t.Create(ctx)
	switch {
	case err == nil:
		return metrics.OutcomeCreated, nil
	case errors.Is(err, topic.ErrAlreadyExists):
		// another worker created it between our probe and create
		return metrics.OutcomeRaced, nil
	default:
		return "", &ProvisioningError{Topic: t.Name(), Op: "create", Err: err}
	}
}
