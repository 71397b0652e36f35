// Package notify hands finished calls to the downstream notification
// service. Delivery from here on is fire-and-forget.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callintel-go/internal/logger"
	"callintel-go/internal/types"
)

// CallMetadata travels alongside the events so the renderer can build a
// useful message without a second lookup.
type CallMetadata struct {
	Industry          string                    `json:"industry"`
	CallerPhone       string                    `json:"caller_phone,omitempty"`
	RecommendedAction types.RecommendedAction   `json:"recommended_action,omitempty"`
	Analysis          *types.MultiEventAnalysis `json:"analysis,omitempty"`
}

// Dispatcher sends one notification per completed call.
type Dispatcher interface {
	Send(ctx context.Context, callID, userID string, events []types.ExtractedEvent, meta CallMetadata) error
}

// Client posts the notification payload to an HTTP endpoint.
type Client struct {
	url  string
	http *http.Client
	log  *logrus.Entry
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  logger.New().WithComponent("notification-dispatcher"),
	}
}

func (c *Client) Send(ctx context.Context, callID, userID string, events []types.ExtractedEvent, meta CallMetadata) error {
	if c.url == "" {
		c.log.WithField("call_id", callID).Warn("notification endpoint not configured, dropping")
		return nil
	}
	payload, _ := json.Marshal(map[string]any{
		"call_id":  callID,
		"user_id":  userID,
		"events":   events,
		"metadata": meta,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint status %d", resp.StatusCode)
	}
	c.log.WithFields(logrus.Fields{"call_id": callID, "events": len(events)}).Info("notification accepted")
	return nil
}

// Recorder captures sends in memory for tests.
type Recorder struct {
	mu    sync.Mutex
	Err   error
	sends []RecordedSend
}

type RecordedSend struct {
	CallID string
	UserID string
	Events []types.ExtractedEvent
	Meta   CallMetadata
}

func (r *Recorder) Send(_ context.Context, callID, userID string, events []types.ExtractedEvent, meta CallMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sends = append(r.sends, RecordedSend{CallID: callID, UserID: userID, Events: events, Meta: meta})
	return nil
}

func (r *Recorder) Sends() []RecordedSend {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedSend, len(r.sends))
	copy(out, r.sends)
	return out
}
