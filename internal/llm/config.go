package llm

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/datchat/internal/errs"
)

const (
	// DefaultBaseURL is the local OpenAI-compatible server used when no URL is set.
	DefaultBaseURL = "http://localhost:8080/v1"

	// EmptyAPIKey stands in for a missing key. No Authorization header is sent
	// for it.
	EmptyAPIKey = "empty"

	// DefaultTimeout bounds one whole completion, stream included.
	DefaultTimeout = 2 * time.Minute
)

// ConfigErrorMessage is what users see when an endpoint cannot be set up.
const ConfigErrorMessage = "Model name, API key, or URL address is incorrect/unavailable."

// ModelConfig describes one OpenAI-compatible completion endpoint.
type ModelConfig struct {
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Stop        []string      `yaml:"stop"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WithDefaults fills the API key sentinel, base URL and timeout.
func (c ModelConfig) WithDefaults() ModelConfig {
	c.Model = strings.TrimSpace(c.Model)
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.APIKey == "" {
		c.APIKey = EmptyAPIKey
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate reports an unusable model id, URL or sampling setting as an
// endpoint_config error.
func (c ModelConfig) Validate() error {
	c = c.WithDefaults()

	if c.Model == "" {
		return configError(fmt.Errorf("model name is required"))
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return configError(fmt.Errorf("parse base url: %w", err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configError(fmt.Errorf("base url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return configError(fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature))
	}
	if c.MaxTokens < 0 {
		return configError(fmt.Errorf("max_tokens must not be negative"))
	}
	return nil
}

// Redacted returns a copy that is safe to log.
func (c ModelConfig) Redacted() ModelConfig {
	if c.APIKey != "" && c.APIKey != EmptyAPIKey {
		c.APIKey = maskKey(c.APIKey)
	}
	return c
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func configError(cause error) error {
	return errs.Wrap(errs.ErrKindEndpointConfig, ConfigErrorMessage, cause)
}
