// Package stage implements the pipeline's per-item workers. Every stage
// follows the same contract: scan the tracker backlog for pending items,
// process them one at a time, write insert-only outputs, and flip the
// tracker's status slot atomically. A failed item never stops the batch;
// only a run-aborting error (revoked credentials, dead SMTP login) does.
package stage

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
)

// Processor does one stage's work for a single tracker. On success it
// returns the output references to record on the tracker.
type Processor interface {
	Stage() model.Stage
	Process(ctx context.Context, t model.Tracker) (model.StageRefs, error)
}

// Report tallies one worker pass over a stage's backlog.
type Report struct {
	Stage     model.Stage `json:"stage"`
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
}

// BacklogFilter returns the pending-scan filter for a stage. The post
// stages work on today's capture; deep scrape and profile intel drain the
// whole backlog, so an item deep-scraped the day after capture still gets
// its profile processed.
func BacklogFilter(s model.Stage, today string) store.PendingFilter {
	switch s {
	case model.StageDeepScrape, model.StageProfileIntel:
		return store.PendingFilter{}
	default:
		return store.PendingFilter{CaptureDate: today}
	}
}

// Runner drains a stage's pending backlog sequentially, pacing item
// processing with an optional rate limiter.
type Runner struct {
	store   store.Store
	limiter *rate.Limiter
	filter  store.PendingFilter
}

// NewRunner creates a Runner. limiter may be nil for unpaced stages.
func NewRunner(st store.Store, limiter *rate.Limiter, filter store.PendingFilter) *Runner {
	return &Runner{store: st, limiter: limiter, filter: filter}
}

// Run processes every pending tracker for the processor's stage. Items with
// missing input are skipped and stay pending; items that fail are marked
// failed and the pass continues. A run-aborting error stops the pass and is
// returned alongside the partial report.
func (r *Runner) Run(ctx context.Context, p Processor) (Report, error) {
	report := Report{Stage: p.Stage()}

	trackers, err := r.store.FindPending(ctx, p.Stage(), r.filter)
	if err != nil {
		return report, err
	}

	log := zap.L().With(zap.String("stage", string(p.Stage())))
	log.Info("stage pass starting", zap.Int("backlog", len(trackers)))

	for _, t := range trackers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		report.Processed++
		refs, err := p.Process(ctx, t)
		switch {
		case err == nil:
			if err := r.store.CompleteStage(ctx, t.ID, p.Stage(), refs); err != nil {
				log.Error("stage completion update failed",
					zap.String("tracker_id", t.ID), zap.Error(err))
				report.Failed++
				continue
			}
			report.Succeeded++

		case errors.Is(err, resilience.ErrDataMissing):
			report.Skipped++
			log.Debug("input not ready, skipping",
				zap.String("tracker_id", t.ID), zap.Error(err))

		case resilience.IsPermanent(err):
			log.Error("run-aborting error, stopping pass",
				zap.String("tracker_id", t.ID), zap.Error(err))
			return report, err

		default:
			report.Failed++
			log.Warn("item failed",
				zap.String("tracker_id", t.ID), zap.Error(err))
			if ferr := r.store.FailStage(ctx, t.ID, p.Stage(), err.Error()); ferr != nil {
				log.Error("stage failure update failed",
					zap.String("tracker_id", t.ID), zap.Error(ferr))
			}
		}
	}

	log.Info("stage pass finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}
