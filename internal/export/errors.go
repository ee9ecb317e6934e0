package export

import (
	"errors"
	"fmt"
)

// ConfigurationError is fatal: missing credentials, missing topic id, or an
// export attempted before the topic was provisioned. Retrying cannot help.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "configuration error: " + e.Reason + ": " + e.Err.Error()
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// InvalidCredentials reports a credential blob that could not be loaded or
// parsed, including one without a project_id.
func InvalidCredentials(err error) error {
	return &ConfigurationError{Reason: "invalid credentials", Err: err}
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ProvisioningError is fatal to startup. Op is the step that failed:
// "connect", "probe" or "create".
type ProvisioningError struct {
	Topic string
	Op    string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision topic %s (%s): %v", e.Topic, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// RetryableExportError tells the caller to resubmit the whole batch later.
// Err joins every failed publish in the batch.
type RetryableExportError struct {
	Topic  string
	Events int
	Failed int
	Err    error
}

func (e *RetryableExportError) Error() string {
	return fmt.Sprintf("error publishing to topic %s: %d of %d %s failed: %v",
		e.Topic, e.Failed, e.Events, pluralEvents(e.Events), e.Err)
}

func (e *RetryableExportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or anything it wraps, is a RetryableExportError.
func IsRetryable(err error) bool {
	var retryable *RetryableExportError
	return errors.As(err, &retryable)
}

func pluralEvents(n int) string {
	if n == 1 {
		return "event"
	}
	return "events"
}
