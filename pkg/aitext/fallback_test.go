package aitext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/resilience"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func withModel(model string) any {
	return mock.MatchedBy(func(req Request) bool { return req.Model == model })
}

func TestCompleteWithFallback_FirstModelWins(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, withModel("primary")).
		Return(&Response{Text: "ok", Model: "primary"}, nil).Once()

	resp, err := CompleteWithFallback(context.Background(), c,
		[]string{"primary", "backup"}, resilience.RetryConfig{MaxAttempts: 1}, Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Model)
	c.AssertNotCalled(t, "Complete", mock.Anything, withModel("backup"))
}

func TestCompleteWithFallback_UnavailableModelAdvances(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, withModel("primary")).
		Return(nil, resilience.ErrModelUnavailable).Once()
	c.On("Complete", mock.Anything, withModel("backup")).
		Return(&Response{Text: "ok", Model: "backup"}, nil).Once()

	resp, err := CompleteWithFallback(context.Background(), c,
		[]string{"primary", "backup"}, resilience.RetryConfig{MaxAttempts: 1}, Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Model)
	c.AssertExpectations(t)
}

func TestCompleteWithFallback_OtherErrorsDoNotAdvance(t *testing.T) {
	c := new(mockCompleter)
	permanent := resilience.NewPermanentError(errors.New("key revoked"))
	c.On("Complete", mock.Anything, withModel("primary")).Return(nil, permanent).Once()

	_, err := CompleteWithFallback(context.Background(), c,
		[]string{"primary", "backup"}, resilience.RetryConfig{MaxAttempts: 1}, Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	c.AssertNotCalled(t, "Complete", mock.Anything, withModel("backup"))
}

func TestCompleteWithFallback_AllModelsUnavailable(t *testing.T) {
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(nil, resilience.ErrModelUnavailable)

	_, err := CompleteWithFallback(context.Background(), c,
		[]string{"primary", "backup"}, resilience.RetryConfig{MaxAttempts: 1}, Request{Prompt: "hi"})
	require.ErrorIs(t, err, resilience.ErrModelUnavailable)
}

func TestCompleteWithFallback_NoModels(t *testing.T) {
	c := new(mockCompleter)
	_, err := CompleteWithFallback(context.Background(), c, nil,
		resilience.RetryConfig{MaxAttempts: 1}, Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models configured")
	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestCompleteWithFallback_TransientErrorRetriesSameModel(t *testing.T) {
	c := new(mockCompleter)
	transient := resilience.NewTransientError(errors.New("overloaded"), 529)
	c.On("Complete", mock.Anything, withModel("primary")).Return(nil, transient).Once()
	c.On("Complete", mock.Anything, withModel("primary")).
		Return(&Response{Text: "ok", Model: "primary"}, nil).Once()

	retry := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 1, JitterFraction: -1}
	resp, err := CompleteWithFallback(context.Background(), c,
		[]string{"primary", "backup"}, retry, Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Model)
	c.AssertExpectations(t)
}
