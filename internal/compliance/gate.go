// Package compliance fronts the external call-recording compliance service.
package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"callintel-go/internal/logger"
)

// Decision is the gate's verdict for one call.
type Decision struct {
	Compliant bool   `json:"compliant"`
	Reason    string `json:"reason,omitempty"`
}

// Gate checks whether processing a call is permitted.
type Gate interface {
	Check(ctx context.Context, callID, userID, callerPhone string) (Decision, error)
}

// Client calls an HTTP compliance endpoint.
type Client struct {
	url  string
	http *http.Client
	log  *logrus.Entry
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  logger.New().WithComponent("compliance-gate"),
	}
}

func (c *Client) Check(ctx context.Context, callID, userID, callerPhone string) (Decision, error) {
	if c.url == "" {
		// no gate configured means nothing to deny
		return Decision{Compliant: true}, nil
	}
	payload, _ := json.Marshal(map[string]string{
		"call_id":      callID,
		"user_id":      userID,
		"caller_phone": callerPhone,
	})

	var dec Decision
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("compliance service status %d", resp.StatusCode)
			return lastErr
		}
		if err := json.Unmarshal(body, &dec); err != nil {
			lastErr = fmt.Errorf("compliance decode: %v", err)
			return backoff.Permanent(lastErr)
		}
		lastErr = nil
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return Decision{}, lastErr
		}
		return Decision{}, err
	}
	c.log.WithFields(logrus.Fields{"call_id": callID, "compliant": dec.Compliant}).Info("compliance check done")
	return dec, nil
}

// Static always answers with a fixed decision. Useful in tests and as the
// permissive default.
type Static struct {
	Decision Decision
	Err      error
}

func (s *Static) Check(_ context.Context, _, _, _ string) (Decision, error) {
	if s.Err != nil {
		return Decision{}, s.Err
	}
	return s.Decision, nil
}
