package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Credentials is the parsed credential blob. It is loaded once at startup
// and never mutated afterwards.
type Credentials struct {
	ProjectID   string
	ClientEmail string

	// Optional auth material for non-Google transports
	Username string
	Password string
	Token    string

	// JSON is the original blob, handed to transport clients that understand it
	JSON []byte
}

type credentialsFile struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Token       string `json:"token"`
}

// Parse reads a JSON credential blob. A project_id is required.
func Parse(data []byte) (Credentials, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Credentials{}, fmt.Errorf("credential blob is empty")
	}

	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credential JSON: %w", err)
	}
	if f.ProjectID == "" {
		return Credentials{}, fmt.Errorf("credential JSON has no project_id")
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	return Credentials{
		ProjectID:   f.ProjectID,
		ClientEmail: f.ClientEmail,
		Username:    f.Username,
		Password:    f.Password,
		Token:       f.Token,
		JSON:        raw,
	}, nil
}

// String renders the credentials with secrets masked, safe for logs.
func (c Credentials) String() string {
	parts := []string{"project=" + c.ProjectID}
	if c.ClientEmail != "" {
		parts = append(parts, "client_email="+c.ClientEmail)
	}
	if c.Username != "" {
		parts = append(parts, "username="+c.Username)
	}
	if c.Password != "" {
		parts = append(parts, "password="+maskCredential(c.Password, 2))
	}
	if c.Token != "" {
		parts = append(parts, "token="+maskCredential(c.Token, 4))
	}
	return strings.Join(parts, " ")
}

// maskCredential masks a credential keeping only the first few characters visible
func maskCredential(value string, visibleChars int) string {
	if len(value) <= visibleChars {
		return strings.Repeat("*", 8)
	}
	return value[:visibleChars] + strings.Repeat("*", len(value)-visibleChars)
}

// Source supplies the raw credential blob.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
	Describe() string
}

// Load reads the blob from src and parses it.
func Load(ctx context.Context, src Source) (Credentials, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load credentials from %s: %w", src.Describe(), err)
	}
	creds, err := Parse(data)
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid credentials from %s: %w", src.Describe(), err)
	}
	return creds, nil
}

// EnvSource reads the blob contents from an environment variable.
type EnvSource struct {
	Variable string
}

func (s EnvSource) Load(_ context.Context) ([]byte, error) {
	value := os.Getenv(s.Variable)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s is not set", s.Variable)
	}
	return []byte(value), nil
}

func (s EnvSource) Describe() string { return "env " + s.Variable }

// FileSource reads the blob from a file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

func (s FileSource) Describe() string { return "file " + s.Path }

// StaticSource serves an already-loaded blob.
type StaticSource []byte

func (s StaticSource) Load(_ context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("no credential blob provided")
	}
	return []byte(s), nil
}

func (s StaticSource) Describe() string { return "inline config" }
