package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/resilience"
)

// fastConfig keeps the inter-send pause out of test runtime.
var fastConfig = DispatchConfig{BatchSize: 5, SendDelay: time.Millisecond}

func TestDispatcher_SendsBatchAndArchives(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedGeneratedLead(t, st, "a@acme.com")
	seedGeneratedLead(t, st, "b@acme.com")

	transport := new(mockTransport)
	transport.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.Subject == "Quick question" && msg.HTMLBody != ""
	})).Return(nil).Twice()

	archiver := new(mockArchiver)
	archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

	report, err := NewDispatcher(st, transport, archiver, fastConfig).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{Picked: 2, Sent: 2}, report)

	counts, err := st.LeadCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.LeadStatusSent])

	transport.AssertExpectations(t)
	archiver.AssertExpectations(t)
}

func TestDispatcher_BatchSizeCapsPickup(t *testing.T) {
	st := newTestStore(t)

	seedGeneratedLead(t, st, "a@acme.com")
	seedGeneratedLead(t, st, "b@acme.com")
	seedGeneratedLead(t, st, "c@acme.com")

	transport := new(mockTransport)
	transport.On("Send", mock.Anything, mock.Anything).Return(nil)

	cfg := fastConfig
	cfg.BatchSize = 2
	report, err := NewDispatcher(st, transport, nil, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Picked)
	assert.Equal(t, 2, report.Sent)
}

func TestDispatcher_FailedSendMarksLeadAndContinues(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	badID := seedGeneratedLead(t, st, "bounce@acme.com")
	seedGeneratedLead(t, st, "ok@acme.com")

	transport := new(mockTransport)
	transport.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.To == "bounce@acme.com"
	})).Return(errors.New("550 mailbox unavailable")).Once()
	transport.On("Send", mock.Anything, mock.MatchedBy(func(msg Message) bool {
		return msg.To == "ok@acme.com"
	})).Return(nil).Once()

	report, err := NewDispatcher(st, transport, nil, fastConfig).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{Picked: 2, Sent: 1, Failed: 1}, report)

	counts, err := st.LeadCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.LeadStatusSent])
	assert.Equal(t, 1, counts[model.LeadStatusFailed])

	bad, err := st.GetLead(ctx, "bounce@acme.com", "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, badID, bad.ID)
	assert.Equal(t, model.LeadStatusFailed, bad.Status)
	transport.AssertExpectations(t)
}

func TestDispatcher_AuthFailureAbortsAndKeepsQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedGeneratedLead(t, st, "a@acme.com")
	seedGeneratedLead(t, st, "b@acme.com")

	transport := new(mockTransport)
	transport.On("Send", mock.Anything, mock.Anything).
		Return(classifySendErr(errors.New("535 5.7.8 authentication failed"))).Once()

	report, err := NewDispatcher(st, transport, nil, fastConfig).Run(ctx)
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, 2, report.Picked)
	assert.Equal(t, 0, report.Sent)

	// Nothing was marked failed; both leads wait for the next pass.
	ready, err := st.ListLeadsReadyToSend(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ready, 2)
	transport.AssertExpectations(t)
}

func TestDispatcher_EmptyQueue(t *testing.T) {
	st := newTestStore(t)

	transport := new(mockTransport)
	report, err := NewDispatcher(st, transport, nil, fastConfig).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{}, report)
	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestClassifySendErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"535 reply code", errors.New("535 5.7.8 bad credentials"), true},
		{"authentication failed text", errors.New("server said: Authentication Failed"), true},
		{"invalid auth combination", errors.New("auth exchange rejected: invalid login"), true},
		{"mailbox problem stays per-message", errors.New("550 mailbox unavailable"), false},
		{"network hiccup stays per-message", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			classified := classifySendErr(tt.err)
			assert.Equal(t, tt.permanent, resilience.IsPermanent(classified))
		})
	}
}
