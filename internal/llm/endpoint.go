// Package llm streams text completions from OpenAI-compatible servers such
// as llama.cpp, vLLM or the OpenAI API itself.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/stream"
)

// User-facing messages for failures during a turn.
const (
	TimeoutMessage     = "The model endpoint did not answer in time."
	UnavailableMessage = "The model endpoint could not be reached."
	BadStatusMessage   = "The model endpoint returned an error."
	BadStreamMessage   = "The model endpoint sent an unreadable response."
)

const maxLineSize = 1 << 20

// CompletionRequest is the body of POST {base}/completions.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

// CompletionChunk is one streamed event.
type CompletionChunk struct {
	Choices []struct {
		Text         string  `json:"text"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Endpoint is one logical model instance bound to its own sink. It is not
// shared between sessions.
type Endpoint struct {
	name   string
	cfg    ModelConfig
	sink   stream.Sink
	client *http.Client
	log    *logger.Logger
}

// Option customises an Endpoint.
type Option func(*Endpoint)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Endpoint) { e.client = c }
}

// WithLogger sets the endpoint's logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Endpoint) { e.log = l }
}

// New validates cfg and returns an Endpoint named name that streams every
// completion into sink.
func New(name string, cfg ModelConfig, sink stream.Sink, opts ...Option) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = stream.Discard
	}

	e := &Endpoint{
		name:   name,
		cfg:    cfg.WithDefaults(),
		sink:   sink,
		client: &http.Client{},
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("endpoint", name).Str("model", e.cfg.Model).Logger()
	return e, nil
}

// Name identifies the endpoint's role in logs and metrics.
func (e *Endpoint) Name() string { return e.name }

// Model returns the configured model id.
func (e *Endpoint) Model() string { return e.cfg.Model }

// Probe checks that the server answers GET {base}/models with the configured
// key. Failures are endpoint_config errors.
func (e *Endpoint) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/models", nil)
	if err != nil {
		return configError(err)
	}
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return configError(fmt.Errorf("probe %s: %w", e.cfg.BaseURL, err))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return configError(fmt.Errorf("probe %s: status %d", e.cfg.BaseURL, resp.StatusCode))
	}
	return nil
}

// Complete streams the completion of prompt into the endpoint's sink, one
// OnToken per token, and returns the assembled text. OnComplete is called
// once the stream ends. Any transport failure or timeout is an endpoint
// error; nothing is retried here.
func (e *Endpoint) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(CompletionRequest{
		Model:       e.cfg.Model,
		Prompt:      prompt,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Stop:        e.cfg.Stop,
		Stream:      true,
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindEndpoint, UnavailableMessage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	e.authorize(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", e.fail(transportError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", e.fail(errs.Wrap(errs.ErrKindEndpoint, BadStatusMessage,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))))
	}

	text, err := e.read(resp.Body)
	if err != nil {
		return "", e.fail(err)
	}

	e.sink.OnComplete()
	return text, nil
}

// read consumes server-sent events until [DONE] or EOF. Some llama.cpp builds
// close the stream without [DONE]; that is accepted, but logged when no
// choice reported a finish reason either.
func (e *Endpoint) read(r io.Reader) (string, error) {
	var (
		full     strings.Builder
		finished bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return full.String(), nil
		}

		var chunk CompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", errs.Wrap(errs.ErrKindEndpoint, BadStreamMessage, fmt.Errorf("decode stream event: %w", err))
		}
		if chunk.Error != nil {
			return "", errs.Wrap(errs.ErrKindEndpoint, BadStatusMessage, errors.New(chunk.Error.Message))
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].FinishReason != nil {
			finished = true
		}

		if token := chunk.Choices[0].Text; token != "" {
			full.WriteString(token)
			e.sink.OnToken(token)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", transportError(err)
	}
	if !finished {
		e.log.WarnWith("completion stream ended without [DONE], output may be truncated", map[string]interface{}{
			"chars": full.Len(),
		})
	}
	return full.String(), nil
}

// authorize sets the bearer token. The empty-key sentinel sends no header.
func (e *Endpoint) authorize(req *http.Request) {
	if e.cfg.APIKey == "" || e.cfg.APIKey == EmptyAPIKey {
		return
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
}

// fail drops any partial output held by the sink and logs the failure.
func (e *Endpoint) fail(err error) error {
	if r, ok := e.sink.(interface{ Reset() }); ok {
		r.Reset()
	}
	e.log.ErrorWith("completion failed", err, nil)
	return err
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindEndpoint, TimeoutMessage, err)
	}
	return errs.Wrap(errs.ErrKindEndpoint, UnavailableMessage, err)
}
