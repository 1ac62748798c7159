package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/ratebench-backend/internal/observability"
	"github.com/yungbote/ratebench-backend/internal/platform/httpx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, upstreamMessage(e.Body))
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// upstreamMessage pulls error.message out of the JSON error envelope all three
// providers use, falling back to the truncated raw body.
func upstreamMessage(body string) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	body = strings.TrimSpace(body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return body
}

type transport struct {
	provider    string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	log         *logger.Logger
}

func newTransport(provider string, cfg Config, log *logger.Logger) *transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &transport{
		provider:    provider,
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  retries,
		baseBackoff: time.Second,
		log:         log.With("client", provider),
	}
}

func (t *transport) doOnce(ctx context.Context, url string, headers map[string]string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{Provider: t.provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// post sends body as JSON and decodes the response into out, retrying transient failures.
func (t *transport) post(ctx context.Context, model, url string, headers map[string]string, body any, out any) error {
	backoff := t.baseBackoff
	start := time.Now()

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := t.doOnce(ctx, url, headers, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				observability.Current().ObserveLLMRequest(t.provider, model, "decode_error", time.Since(start), 0)
				return fmt.Errorf("%s decode error: %w", t.provider, uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == t.maxRetries {
			observability.Current().ObserveLLMRequest(t.provider, model, statusLabel(resp, err), time.Since(start), 0)
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		t.log.Warn("LLM request retrying",
			"model", model,
			"attempt", attempt+1,
			"max_retries", t.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return sErr
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (t *transport) observeOK(model string, start time.Time, tokens *int) {
	n := 0
	if tokens != nil {
		n = *tokens
	}
	observability.Current().ObserveLLMRequest(t.provider, model, "ok", time.Since(start), n)
}

func statusLabel(resp *http.Response, err error) string {
	if resp != nil {
		return fmt.Sprintf("%d", resp.StatusCode)
	}
	if err != nil {
		return "transport_error"
	}
	return "unknown"
}
