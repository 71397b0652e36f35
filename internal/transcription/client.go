// Package transcription wraps the external speech-to-text gateway behind
// the Provider interface.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"callintel-go/internal/logger"
)

// Provider converts a recorded call into text.
type Provider interface {
	Transcribe(ctx context.Context, audioLocator string) (string, error)
}

var (
	// ErrDownloadFailed means the audio or transcript payload could not be
	// fetched. Retryable.
	ErrDownloadFailed = errors.New("transcription download failed")
	// ErrTooLarge means the payload exceeded the configured size limit.
	// Fatal: retrying cannot shrink the recording.
	ErrTooLarge = errors.New("audio payload too large")
	// ErrTranscriptionFailed means the STT engine reported failure.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Config holds gateway settings.
type Config struct {
	BaseURL      string
	CallType     string
	SizeLimit    int64 // bytes; 0 means no limit
	Timeout      time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// Client speaks the publish / poll / download protocol of the STT gateway.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = 40
	}
	if cfg.CallType == "" {
		cfg.CallType = "PNS"
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.New().WithComponent("transcription-client"),
	}
}

type publishResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type statusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"`
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// Transcribe publishes the recording, polls until done and downloads the
// transcript text.
func (c *Client) Transcribe(ctx context.Context, audioLocator string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", fmt.Errorf("%w: gateway not configured", ErrTranscriptionFailed)
	}
	c.log.WithField("audio", audioLocator).Info("starting transcription")

	mediaID, existingURL, err := c.publish(ctx, audioLocator)
	if err != nil {
		return "", err
	}
	if existingURL != "" {
		return c.download(ctx, existingURL)
	}
	finalURL, err := c.poll(ctx, mediaID)
	if err != nil {
		return "", err
	}
	return c.download(ctx, finalURL)
}

func (c *Client) publish(ctx context.Context, audioLocator string) (string, string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/transcribe"
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("callRecordingLink", audioLocator)
	_ = w.WriteField("callType", c.cfg.CallType)
	_ = w.Close()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &b)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var resp publishResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", "", fmt.Errorf("%w: publish: %v", ErrTranscriptionFailed, err)
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("%w: publish code=%d reason=%s", ErrTranscriptionFailed, resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.TranscriptionURL, nil
	}
	return resp.Data.MediaId, "", nil
}

func (c *Client) poll(ctx context.Context, mediaID string) (string, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/") + "/getstatus"
	for i := 0; i < c.cfg.PollAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("mediaId", mediaID)
		u.RawQuery = q.Encode()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		var s statusResponse
		if err := c.doJSON(req, &s); err != nil {
			c.log.WithError(err).Warn("status poll failed")
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.TranscriptionTextURL, nil
		case "Queued", "Processing":
			continue
		case "Failed":
			return "", fmt.Errorf("%w: %s", ErrTranscriptionFailed, s.Reason)
		}
	}
	return "", fmt.Errorf("%w: polling gave up", ErrTranscriptionFailed)
}

// download fetches the transcript text, enforcing the size limit.
func (c *Client) download(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}
	if c.cfg.SizeLimit > 0 && resp.ContentLength > c.cfg.SizeLimit {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, resp.ContentLength, c.cfg.SizeLimit)
	}
	reader := io.Reader(resp.Body)
	if c.cfg.SizeLimit > 0 {
		reader = io.LimitReader(resp.Body, c.cfg.SizeLimit+1)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if c.cfg.SizeLimit > 0 && int64(len(payload)) > c.cfg.SizeLimit {
		return "", fmt.Errorf("%w: over %d bytes", ErrTooLarge, c.cfg.SizeLimit)
	}
	return string(payload), nil
}

func (c *Client) doJSON(req *http.Request, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.Timeout
	var lastErr error
	op := func() error {
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Body = body
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", truncate(body, 200))
			return lastErr
		}
		if len(body) == 0 {
			lastErr = errors.New("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode: %v", err)
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return lastErr
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Mock returns a fixed transcript, for offline demos and tests.
type Mock struct {
	Text string
	Err  error
}

func (m *Mock) Transcribe(_ context.Context, _ string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return "Hi, this is Pat Doyle, the pipe under my kitchen sink is dripping, can someone come out tomorrow morning? I'm at 88 Elm Street, my number is 555-0141.", nil
}
