package source

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often a transient HTTP failure is retried
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy retries three times starting at 200ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

// backoff returns the delay before retry number attempt (0-based):
// exponential growth with ±12.5% jitter, capped at BackoffMax
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BackoffBase <= 0 {
		return 0
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := time.Duration(1<<uint(attempt)) * p.BackoffBase //nolint:gosec // G115: attempt is capped above
	if spread := int64(delay / 4); spread > 0 {
		delay += time.Duration(time.Now().UnixNano()%spread) - delay/8
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay
}

// retryable reports whether a response status is worth another attempt
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// do sends req, retrying network errors and retryable statuses. The last
// attempt's response or error is returned unchanged.
func (h *HTTPOpener) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := h.client.Do(req.Clone(ctx))
		if attempt >= h.retry.MaxRetries || ctx.Err() != nil {
			return resp, err
		}
		if err == nil && !retryable(resp.StatusCode) {
			return resp, nil
		}

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt+1),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", resp.StatusCode))
			resp.Body.Close()
		}
		delay := h.retry.backoff(attempt)
		h.logger.Warn("retrying request", append(fields, zap.Duration("delay", delay))...)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
