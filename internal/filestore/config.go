package filestore

import (
	"strings"

	"github.com/koustreak/datchat/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// DefaultBucket is used by object references that name no bucket.
	DefaultBucket string
}

// Enabled reports whether an object store has been configured at all.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// Validate checks the settings required to open a client.
func (c *Config) Validate() error {
	if c.Provider != "" && c.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindConfiguration, "unsupported object store provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return errs.New(errs.ErrKindConfiguration, "object store endpoint is required")
	}
	return nil
}

// ObjectRef points at one object. An empty Bucket means Config.DefaultBucket.
type ObjectRef struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
}

// IsZero reports whether the reference names no object.
func (r ObjectRef) IsZero() bool {
	return r.Key == ""
}

// Resolve fills the bucket from the config default.
func (r ObjectRef) Resolve(c *Config) ObjectRef {
	if r.Bucket == "" && c != nil {
		r.Bucket = c.DefaultBucket
	}
	return r
}

func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}
