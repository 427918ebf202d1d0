package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// ErrConfiguration marks a completion-service credential or setup problem.
// Fatal: surfaced as a system configuration error, never retried.
var ErrConfiguration = errors.New("completion: service misconfigured")

const (
	// defaultTimeout is the per-attempt ceiling; exceeding it is a
	// retryable failure, not a fatal one.
	defaultTimeout = 60 * time.Second

	// retryPause is the fixed pause before the single automatic retry.
	retryPause = 1500 * time.Millisecond
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role/content pair on the completion wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamCallbacks receives incremental output. OnReset fires when a retry
// discards a partial stream so the caller can drop buffered deltas.
type StreamCallbacks struct {
	OnDelta func(delta string)
	OnReset func()
}

// Client talks to an OpenAI-compatible chat completions endpoint. Responses
// are either a single JSON object or an SSE stream of delta events terminated
// by [DONE]. One transient failure is retried automatically before an error
// reaches the caller.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	timeout time.Duration
	logger  *logging.Logger
	tracer  trace.Tracer
}

// Option tunes a Client.
type Option func(*Client)

// WithTimeout overrides the per-attempt request ceiling.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient injects the transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a completion client. model defaults to gpt-4o-mini.
func NewClient(baseURL, apiKey, model string, logger *logging.Logger, opts ...Option) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{},
		timeout: defaultTimeout,
		logger:  logger,
		tracer:  otel.Tracer("pura.internal.completion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestBody struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete requests a full, non-streamed completion.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "completion.complete")
	defer span.End()
	span.SetAttributes(attribute.Int("pura.completion.messages", len(messages)))

	var text string
	err := c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.post(ctx, requestBody{Model: c.model, Messages: messages})
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		var body responseBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("completion: malformed response: %w", err)
		}
		if body.Error != nil {
			return fmt.Errorf("completion: service error: %s", body.Error.Message)
		}
		if len(body.Choices) == 0 {
			return errors.New("completion: response had no choices")
		}
		text = strings.TrimSpace(body.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}

// Stream requests a streamed completion, invoking callbacks per delta, and
// returns the fully reassembled text.
func (c *Client) Stream(ctx context.Context, messages []Message, cb StreamCallbacks) (string, error) {
	ctx, span := c.tracer.Start(ctx, "completion.stream")
	defer span.End()
	span.SetAttributes(attribute.Int("pura.completion.messages", len(messages)))

	var text string
	first := true
	err := c.withRetry(ctx, func(ctx context.Context) error {
		if !first && cb.OnReset != nil {
			cb.OnReset()
		}
		first = false

		resp, err := c.post(ctx, requestBody{Model: c.model, Messages: messages, Stream: true})
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		content, err := c.consumeStream(resp.Body, cb)
		if err != nil {
			return err
		}
		text = content
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}

// consumeStream reassembles delta events into the final message text.
func (c *Client) consumeStream(body io.Reader, cb StreamCallbacks) (string, error) {
	dec := NewSSEDecoder(body)
	var sb strings.Builder
	for {
		evt, err := dec.Next()
		if errors.Is(err, ErrStreamDone) || errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("completion: stream read failed: %w", err)
		}

		var chunk responseBody
		if err := json.Unmarshal([]byte(evt.Data), &chunk); err != nil {
			// A malformed event payload is skipped; the decoder already
			// guarantees we are not looking at a split event.
			c.logger.Debug("completion: skipping malformed stream event", "error", err)
			continue
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("completion: stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if cb.OnDelta != nil {
			cb.OnDelta(delta)
		}
	}
}

// post issues one bounded attempt against the chat completions endpoint.
func (c *Client) post(ctx context.Context, body requestBody) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrConfiguration)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("completion: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("completion: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion: request failed: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrConfiguration, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// withRetry runs fn with the per-attempt timeout and a single automatic retry
// on transient failure. Configuration errors are never retried.
func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(attemptCtx)
	}

	err := attempt()
	if err == nil || errors.Is(err, ErrConfiguration) {
		return err
	}

	c.logger.Warn("completion attempt failed, retrying once", "error", err)
	select {
	case <-time.After(retryPause):
	case <-ctx.Done():
		return ctx.Err()
	}

	if retryErr := attempt(); retryErr != nil {
		return fmt.Errorf("completion: retry failed: %w", retryErr)
	}
	return nil
}
