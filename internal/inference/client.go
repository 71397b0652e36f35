// Package inference wraps the external language-model gateway behind the
// Provider interface so the extraction engine can be tested against fakes.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"callintel-go/internal/logger"
)

// Provider is the single black-box contract: prompt in, text out.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrUnavailable marks transport-level failures. Retryable.
	ErrUnavailable = errors.New("inference provider unavailable")
	// ErrMalformed marks a reply the gateway produced but we cannot use.
	ErrMalformed = errors.New("inference response malformed")
)

// Config holds gateway connection settings.
type Config struct {
	GatewayURL string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxElapsed time.Duration
}

// Client calls an OpenAI-style chat-completions gateway.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 45 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.New().WithComponent("inference-client"),
	}
}

// Complete makes the round-trip with exponential backoff on transient
// failures. Client errors (4xx) and unusable bodies are permanent.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.GatewayURL == "" || c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: gateway not configured", ErrUnavailable)
	}

	reqBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, _ := json.Marshal(reqBody)

	var content string
	var lastErr error
	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			c.log.WithError(err).Warn("gateway request failed")
			return lastErr
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode)
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("%w: gateway status %d: %s", ErrMalformed, resp.StatusCode, truncate(body, 200))
			return backoff.Permanent(lastErr)
		}

		inner, ok := contentFromChoices(body)
		if !ok {
			lastErr = fmt.Errorf("%w: no choices content in gateway reply", ErrMalformed)
			return backoff.Permanent(lastErr)
		}
		content = inner
		lastErr = nil
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.cfg.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return content, nil
}

// contentFromChoices reads an OpenAI-style choices[0].message.content.
func contentFromChoices(body []byte) (string, bool) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return "", false
	}
	return parsed.Choices[0].Message.Content, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Mock is a deterministic offline provider for demos and tests, enabled in
// main via USE_MOCK_LLM.
type Mock struct {
	// Response overrides the canned reply when non-empty.
	Response string
	// Err, when set, is returned instead of any response.
	Err error
}

func (m *Mock) Complete(_ context.Context, _ string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return `{"events":[{"type":"service_call","title":"Kitchen sink leak","description":"caller reports a dripping pipe under the kitchen sink","customer_name":"Pat Doyle","customer_phone":"555-0141","location":"88 Elm Street","proposed_datetime":"tomorrow morning","urgency":"medium"}]}`, nil
}
