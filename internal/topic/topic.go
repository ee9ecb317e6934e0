package topic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
)

// Sentinel conditions that backends map their transport status codes onto.
// Backends wrap them together with the original error so both are visible.
var (
	ErrNotFound      = errors.New("topic not found")
	ErrAlreadyExists = errors.New("topic already exists")
)

// Handle is a provisioned publish endpoint. Publish must be safe for
// concurrent use; each call publishes exactly one message.
type Handle interface {
	Name() string
	Publish(ctx context.Context, data []byte) (string, error)
	Close() error
}

// Topic is a Handle that can also be probed and created during provisioning.
type Topic interface {
	Handle
	Probe(ctx context.Context) error
	Create(ctx context.Context) error
}

// Connector opens a client bound to the credentials' project and returns a
// handle for the named topic. It does not check that the topic exists.
type Connector interface {
	Open(ctx context.Context, creds credentials.Credentials, name string) (Topic, error)
}

// DecodeID turns the base64 transport form of a topic id into its literal name.
func DecodeID(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", fmt.Errorf("topic id is empty")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		var rawErr error
		decoded, rawErr = base64.RawStdEncoding.DecodeString(encoded)
		if rawErr != nil {
			return "", fmt.Errorf("topic id is not valid base64: %w", err)
		}
	}

	name := strings.TrimSpace(string(decoded))
	if name == "" {
		return "", fmt.Errorf("topic id decodes to an empty name")
	}
	return name, nil
}

// EncodeID returns the base64 transport form of a topic name.
func EncodeID(name string) string {
	return base64.StdEncoding.EncodeToString([]byte(name))
}
