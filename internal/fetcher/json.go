package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array. Scrape
// drops can run to tens of thousands of posts, so elements are decoded one
// at a time and delivered on the returned channel instead of materializing
// the whole feed. Both channels close when the array ends or decoding
// fails; elements delivered before a mid-array error are still valid.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	out := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		dec := json.NewDecoder(r)

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for dec.More() {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "json: context cancelled")
				return
			}

			var elem T
			if err := dec.Decode(&elem); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case out <- elem:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return out, errCh
}

// DecodeJSONObject decodes a single JSON document from r.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}
