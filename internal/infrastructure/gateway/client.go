// Package gateway holds the transport shared by the payment provider adapters.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// Client performs JSON calls against one provider and maps every transport
// or non-2xx failure to an external-service error.
type Client struct {
	provider string
	baseURL  string
	http     *http.Client
	log      observability.Logger
}

func NewClient(provider, baseURL string, timeout time.Duration, logger observability.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Client{
		provider: provider,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		log:      logger.With(observability.F("component", "gateway"), observability.F("provider", provider)),
	}
}

// Request describes one outbound call. Body is sent as-is when it is an
// io.Reader and JSON-encoded otherwise.
type Request struct {
	Method      string
	Path        string
	Body        any
	ContentType string
	Header      http.Header
}

// StatusError carries a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.Code, e.Body)
}

// Do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, op string, req Request, out any) error {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return apperr.External(err, "%s %s: encode request", c.provider, op)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return apperr.External(err, "%s %s: build request", c.provider, op)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	logger := logctx.FromOr(ctx, c.log)
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Warn("gateway_request_failed",
			observability.F("operation", op),
			observability.F("timeout", isTimeout(err)),
			observability.Err(err),
		)
		return apperr.External(err, "%s %s", c.provider, op)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return apperr.External(err, "%s %s: read response", c.provider, op)
	}
	logger.Debug("gateway_request_done",
		observability.F("operation", op),
		observability.F("status_code", resp.StatusCode),
		observability.F("latency_seconds", time.Since(start).Seconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.External(&StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 512)}, "%s %s", c.provider, op)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.External(err, "%s %s: decode response", c.provider, op)
	}
	return nil
}

func encodeBody(req Request) (io.Reader, string, error) {
	if req.Body == nil {
		return nil, req.ContentType, nil
	}
	if r, ok := req.Body.(io.Reader); ok {
		return r, req.ContentType, nil
	}
	b, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	ct := req.ContentType
	if ct == "" {
		ct = "application/json"
	}
	return bytes.NewReader(b), ct, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
