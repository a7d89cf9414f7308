package notify

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// Sender posts formatted events to webhook endpoints. The zero value is
// not usable; DefaultSender carries the settings the dispatcher uses.
type Sender struct {
	Client   *http.Client
	Attempts int           // total tries per delivery
	Backoff  time.Duration // multiplied by the retry index
}

// DefaultSender is used by the package-level Send and by Dispatcher.
var DefaultSender = &Sender{
	Client:   &http.Client{Timeout: 5 * time.Second},
	Attempts: 3,
	Backoff:  time.Second,
}

// Send delivers one event through DefaultSender.
func Send(cfg WebhookConfig, event Event) error {
	return DefaultSender.Send(cfg, event)
}

// Send formats the event per cfg.Format and posts it. Server errors
// (5xx) and transport failures are retried; a 4xx means the endpoint
// rejected the payload and retrying cannot help.
func (s *Sender) Send(cfg WebhookConfig, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.Attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.Backoff)
		}

		retryable, err := s.post(cfg, body)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", s.Attempts, lastErr)
}

func (s *Sender) post(cfg WebhookConfig, body []byte) (retryable bool, err error) {
	req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
	default:
		return true, fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}
}
