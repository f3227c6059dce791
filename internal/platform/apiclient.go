package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Request describes one call made through APIClient. Body is resent on retry.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Retries int
}

// JSONRequest builds a request with a JSON-encoded body.
func JSONRequest(method, url string, payload any) (Request, error) {
	req := Request{Method: method, URL: url, Header: http.Header{}}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	return req, nil
}

// APIClient is the shared HTTP transport of the platform adapters: paced by a
// token bucket and retrying transport errors and 5xx responses with backoff.
type APIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	name       string
	logger     *zap.Logger
	sleep      func(time.Duration)
}

func NewAPIClient(name string, httpClient *http.Client, logger *zap.Logger) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.APIConfig.HTTPTimeout}
	}
	return &APIClient{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(constants.APIConfig.RequestsPerSecond), constants.APIConfig.Burst),
		name:       name,
		logger:     logger.With(zap.String("api", name)),
		sleep:      time.Sleep,
	}
}

// Do sends req and returns the response body of a 2xx response.
func (c *APIClient) Do(ctx context.Context, req Request) ([]byte, error) {
	maxAttempts := req.Retries + 1
	if req.Retries == 0 {
		maxAttempts = constants.RetryConfig.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
		if err != nil {
			return nil, err
		}
		for key, values := range req.Header {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < maxAttempts-1 {
				delay := c.computeDelay(attempt)
				c.logger.Warn("Request failed, retrying",
					zap.Error(err),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
				)
				c.sleep(delay)
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = errors.NewAPIError(fmt.Sprintf("%s server error: %d", c.name, resp.StatusCode), resp.StatusCode, map[string]any{
				"url": req.URL,
			})
			if attempt < maxAttempts-1 {
				delay := c.computeDelay(attempt)
				c.logger.Warn("Server error, retrying",
					zap.Int("status", resp.StatusCode),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
				)
				c.sleep(delay)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return nil, errors.NewAPIError(fmt.Sprintf("%s client error: %d", c.name, resp.StatusCode), resp.StatusCode, map[string]any{
				"url":  req.URL,
				"body": string(body),
			})
		}

		return body, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s request failed", c.name)
}

// DoJSON sends req and decodes a JSON response into out when out is non-nil.
func (c *APIClient) DoJSON(ctx context.Context, req Request, out any) error {
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *APIClient) computeDelay(attempt int) time.Duration {
	base := constants.RetryConfig.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	jitter := time.Duration(rand.Float64() * float64(constants.RetryConfig.Jitter))
	return base + jitter
}
