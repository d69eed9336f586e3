package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webasthetic/leadflow/internal/contact"
	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
	"github.com/webasthetic/leadflow/pkg/aitext"
)

const summarizeSystem = `You analyze social media posts for a B2B lead research team.
Given a post, respond with a JSON object and nothing else:
{"intent": "<what the author wants>", "role": "<author's likely role>", "summary": "<2-3 sentence summary>", "personalization": "<one hook a cold email could open with>"}`

// summaryPayload is the JSON shape the summarization model is asked for.
type summaryPayload struct {
	Intent          string `json:"intent"`
	Role            string `json:"role"`
	Summary         string `json:"summary"`
	Personalization string `json:"personalization"`
}

// Summarizer is the summary stage: it asks the AI to read a post and
// produce the targeting context later stages build emails from.
type Summarizer struct {
	store     store.Store
	ai        aitext.Completer
	models    []string
	retry     resilience.RetryConfig
	maxTokens int64
}

// NewSummarizer creates the summary stage processor. models is the ordered
// fallback list; the first available one wins.
func NewSummarizer(st store.Store, ai aitext.Completer, models []string) *Summarizer {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("aitext", "summarize")
	return &Summarizer{
		store:     st,
		ai:        ai,
		models:    models,
		retry:     retry,
		maxTokens: 1024,
	}
}

func (s *Summarizer) Stage() model.Stage {
	return model.StageSummary
}

func (s *Summarizer) Process(ctx context.Context, t model.Tracker) (model.StageRefs, error) {
	item, err := s.store.GetSourceItem(ctx, t.SourceRef)
	if err != nil {
		return model.StageRefs{}, err
	}
	if item == nil || contact.CleanText(item.Content) == "" {
		return model.StageRefs{}, resilience.ErrDataMissing
	}

	prompt := fmt.Sprintf("Author: %s\n\nPost:\n%s", item.AuthorName, contact.CleanText(item.Content))
	resp, err := aitext.CompleteWithFallback(ctx, s.ai, s.models, s.retry, aitext.Request{
		System:    summarizeSystem,
		Prompt:    prompt,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return model.StageRefs{}, err
	}
	resp.Usage.LogCost(resp.Model, string(s.Stage()))

	summary := model.PostSummary{
		ID:          uuid.New().String(),
		SourceRef:   t.SourceRef,
		Raw:         resp.Text,
		GeneratedAt: time.Now().UTC(),
	}

	// A malformed response still completes the stage with the raw text;
	// downstream consumers fall back to it.
	var payload summaryPayload
	if err := aitext.DecodeJSON(resp.Text, &payload); err != nil {
		zap.L().Warn("summary response not valid JSON, storing raw text",
			zap.String("source_ref", t.SourceRef), zap.Error(err))
	} else {
		summary.Intent = payload.Intent
		summary.Role = payload.Role
		summary.SummaryText = payload.Summary
		summary.Personalization = payload.Personalization
	}

	if err := s.store.InsertPostSummary(ctx, summary); err != nil {
		return model.StageRefs{}, err
	}
	return model.StageRefs{Summary: &summary.ID}, nil
}
