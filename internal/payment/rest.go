package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-coaching/internal/logger"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Body)
}

// restClient sends JSON requests with retries on transport errors and 5xx.
type restClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *logger.Logger
}

func newRESTClient(name, baseURL string, log *logger.Logger) restClient {
	return restClient{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 2,
		retryDelay: 200 * time.Millisecond,
		logger:     log,
	}
}

// do sends body (JSON-encoded unless it is an io.Reader) and decodes a 2xx
// response into out. headers are set on every attempt.
func (c *restClient) do(ctx context.Context, method, endpoint string, headers map[string]string, body, out interface{}) error {
	var payload []byte
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case formBody:
		payload = []byte(b)
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", c.name, err)
		}
		payload = raw
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build %s request: %w", c.name, err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, endpoint, err)
			c.logger.Warn("PAYMENT", fmt.Sprintf("%s request failed (attempt %d): %v", c.name, attempt+1, err))
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read %s response: %w", c.name, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode %s response: %w", c.name, err)
			}
			return nil
		}

		lastErr = &APIError{Status: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode < 500 {
			return lastErr
		}
		c.logger.Warn("PAYMENT", fmt.Sprintf("%s %s returned %d (attempt %d)", c.name, endpoint, resp.StatusCode, attempt+1))
	}
	return lastErr
}

type formBody string
