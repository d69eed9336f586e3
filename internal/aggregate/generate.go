package aggregate

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
	"github.com/webasthetic/leadflow/pkg/aitext"
)

const generateSystem = `You write short, personal B2B cold emails for a software services firm.
Given what is known about the recipient, respond with a JSON object and nothing else:
{"subject": "<under 60 characters>", "body": "<3 short paragraphs, plain text, no signature>"}`

// emailPayload is the JSON shape the generation model is asked for.
type emailPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generator produces the outreach email for each lead that does not have
// one yet. Generation is paced by a rate limiter because it is the
// heaviest AI consumer in the pipeline.
type Generator struct {
	store   store.Store
	ai      aitext.Completer
	models  []string
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	footer  string
}

// GenerateReport tallies one generation pass.
type GenerateReport struct {
	Processed int `json:"processed"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
}

// NewGenerator creates a Generator. footer is appended verbatim to every
// generated body (signature, unsubscribe notice).
func NewGenerator(st store.Store, ai aitext.Completer, models []string, limiter *rate.Limiter, footer string) *Generator {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("aitext", "generate_email")
	return &Generator{
		store:   st,
		ai:      ai,
		models:  models,
		retry:   retry,
		limiter: limiter,
		footer:  footer,
	}
}

// Run generates emails for every lead of the given day still awaiting one.
// A lead whose generation fails stays eligible for the next pass; only a
// run-aborting error stops the pass early.
func (g *Generator) Run(ctx context.Context, leadDate string) (GenerateReport, error) {
	var report GenerateReport
	log := zap.L().With(zap.String("lead_date", leadDate))

	leads, err := g.store.ListLeadsPendingGeneration(ctx, leadDate)
	if err != nil {
		return report, err
	}
	log.Info("generation pass starting", zap.Int("pending", len(leads)))

	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		report.Processed++
		if err := g.generateOne(ctx, lead); err != nil {
			if resilience.IsPermanent(err) {
				log.Error("run-aborting error, stopping generation", zap.Error(err))
				return report, err
			}
			report.Failed++
			log.Warn("email generation failed, lead stays eligible",
				zap.String("lead_id", lead.ID), zap.Error(err))
			g.markTrackerOutreach(ctx, lead.TrackerID, err)
			continue
		}
		report.Generated++
		g.markTrackerOutreach(ctx, lead.TrackerID, nil)
	}

	log.Info("generation pass finished",
		zap.Int("processed", report.Processed),
		zap.Int("generated", report.Generated),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (g *Generator) generateOne(ctx context.Context, lead model.Lead) error {
	prompt := fmt.Sprintf(
		"Recipient name: %s\nWhat they posted about: %s\nTheir profile: %s",
		lead.Name, lead.PostSummary, lead.ProfileSummary,
	)

	resp, err := aitext.CompleteWithFallback(ctx, g.ai, g.models, g.retry, aitext.Request{
		System:    generateSystem,
		Prompt:    prompt,
		MaxTokens: 1024,
	})
	if err != nil {
		return err
	}
	resp.Usage.LogCost(resp.Model, "generate_email")

	var payload emailPayload
	if err := aitext.DecodeJSON(resp.Text, &payload); err != nil {
		return err
	}
	if payload.Subject == "" || payload.Body == "" {
		return eris.New("generated email missing subject or body")
	}

	body := payload.Body
	if g.footer != "" {
		body += "\n\n" + g.footer
	}
	return g.store.MarkLeadGenerated(ctx, lead.ID, payload.Subject, body)
}

// markTrackerOutreach records the outreach outcome on the source tracker.
// Several leads can share a tracker, so a slot that is no longer pending is
// left alone.
func (g *Generator) markTrackerOutreach(ctx context.Context, trackerID string, genErr error) {
	if trackerID == "" {
		return
	}
	var err error
	if genErr == nil {
		err = g.store.CompleteStage(ctx, trackerID, model.StageOutreach, model.StageRefs{})
	} else {
		err = g.store.FailStage(ctx, trackerID, model.StageOutreach, genErr.Error())
	}
	if err != nil {
		zap.L().Debug("outreach slot already settled",
			zap.String("tracker_id", trackerID), zap.Error(err))
	}
}
