package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/resilience"
)

// callbackClient POSTs job completion payloads to caller-supplied URLs.
// Deliveries retry on transient failures; the receiving end is usually a
// workflow engine that re-triggers on missed callbacks, so a lost
// delivery is logged, not fatal.
type callbackClient struct {
	http  *http.Client
	retry resilience.RetryConfig
}

func newCallbackClient() *callbackClient {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("server", "callback")
	return &callbackClient{
		http:  &http.Client{Timeout: 15 * time.Second},
		retry: retry,
	}
}

func (c *callbackClient) Post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "server: marshal callback payload")
	}

	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return resilience.NewPermanentError(eris.Wrap(err, "server: build callback request"))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "server: post callback"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = eris.Errorf("server: callback returned %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return resilience.NewPermanentError(err)
	})
}
