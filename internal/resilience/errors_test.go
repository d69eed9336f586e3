package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransientError(errors.New("x"), 0)), true},
		{"permanent never transient", NewPermanentError(errors.New("rate limit")), false},
		{"connection reset pattern", errors.New("read tcp: connection reset by peer"), true},
		{"rate limit pattern", eris.New("upstream rate limit hit"), true},
		{"dns pattern", errors.New("dial tcp: no such host"), true},
		{"plain failure", errors.New("record malformed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("anything")))
	assert.True(t, IsPermanent(NewPermanentError(errors.New("bad key"))))
	assert.True(t, IsPermanent(fmt.Errorf("send: %w", NewPermanentError(errors.New("bad key")))))
}

func TestErrorWrappersUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	assert.ErrorIs(t, NewTransientError(inner, 500), inner)
	assert.ErrorIs(t, NewPermanentError(inner), inner)
	assert.Equal(t, "inner", NewTransientError(inner, 500).Error())
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
