package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPSink posts events as JSON to an ingestion endpoint.
type HTTPSink struct {
	URL    string
	APIKey string
	Client *http.Client

	// MaxTries bounds delivery attempts per event, default 3.
	MaxTries uint
	// InitialInterval is the first retry delay, default 500ms.
	InitialInterval time.Duration
}

func NewHTTPSink(url, apiKey string) *HTTPSink {
	return &HTTPSink{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type capturePayload struct {
	APIKey string `json:"api_key,omitempty"`
	Event
}

// Send delivers ev, retrying network errors and 5xx/429 responses with
// exponential backoff. Other 4xx responses are not retried.
func (s *HTTPSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(capturePayload{APIKey: s.APIKey, Event: ev})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	tries := s.MaxTries
	if tries == 0 {
		tries = 3
	}
	b := backoff.NewExponentialBackOff()
	if s.InitialInterval > 0 {
		b.InitialInterval = s.InitialInterval
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.post(ctx, body)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("analytics endpoint returned %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("analytics endpoint returned %d", resp.StatusCode))
	}
}
