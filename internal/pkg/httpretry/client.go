// Package httpretry provides an HTTP client that retries transient failures
// under a retry.Policy.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/retry"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for a retryable status when attempts remain.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpretry: server returned retryable status %d", e.Code)
}

// RetryClient wraps an HTTPDoer with a retry policy.
type RetryClient struct {
	client HTTPDoer
	policy *retry.Policy
}

// NewRetryClient wraps client. A nil client becomes an http.Client with a
// 30s timeout; a nil policy becomes the retry package defaults.
func NewRetryClient(client HTTPDoer, policy *retry.Policy) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy == nil {
		policy = retry.New(retry.WithName("http"))
	}
	return &RetryClient{client: client, policy: policy}
}

// Do executes the request, retrying network errors and retryable status
// codes (429, 500, 502, 503, 504). Other statuses return immediately. On
// the final attempt the response is returned as-is so the caller can
// inspect it.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	attempt := 0
	return retry.Do(req.Context(), rc.policy, func(ctx context.Context) (*http.Response, error) {
		attempt++
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, ingesterr.NewConfigurationFailure("httpretry: failed to reset request body", "request.body", err)
			}
			req.Body = body
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			return nil, err
		}
		if !IsRetryableStatus(resp.StatusCode) || attempt >= rc.policy.MaxAttempts() {
			return resp, nil
		}

		// Drain for connection reuse.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	})
}

// IsRetryableStatus reports whether code is a transient server condition.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
