package aitext

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/resilience"
)

// CompleteWithFallback walks the model list until one answers. Each model
// gets the full retry budget for transient failures; only an unavailable
// model advances to the next candidate.
func CompleteWithFallback(ctx context.Context, c Completer, models []string, retry resilience.RetryConfig, req Request) (*Response, error) {
	if len(models) == 0 {
		return nil, eris.New("aitext: no models configured")
	}

	var lastErr error
	for _, model := range models {
		req.Model = model
		resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
			return c.Complete(ctx, req)
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, resilience.ErrModelUnavailable) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}
