package mailer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/webasthetic/leadflow/internal/model"
	"github.com/webasthetic/leadflow/internal/resilience"
	"github.com/webasthetic/leadflow/internal/store"
)

// DispatchConfig tunes a dispatch pass.
type DispatchConfig struct {
	// BatchSize caps how many leads one pass picks up. Default: 5.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// SendDelay is the pause between consecutive sends. Default: 8s.
	SendDelay time.Duration `yaml:"send_delay" mapstructure:"send_delay"`
}

// Dispatcher walks the ready-to-send queue and delivers generated emails.
// Sends are deliberately slow and small-batched; outreach volume that looks
// like a burst gets the sender flagged.
type Dispatcher struct {
	store     store.Store
	transport Transport
	archiver  Archiver
	cfg       DispatchConfig
	retry     resilience.RetryConfig
}

// DispatchReport tallies one dispatch pass.
type DispatchReport struct {
	Picked int `json:"picked"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// NewDispatcher creates a Dispatcher. archiver may be nil.
func NewDispatcher(st store.Store, transport Transport, archiver Archiver, cfg DispatchConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = 8 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("mailer", "send")
	return &Dispatcher{
		store:     st,
		transport: transport,
		archiver:  archiver,
		cfg:       cfg,
		retry:     retry,
	}
}

// Run sends one batch. A failed send marks the lead failed and continues;
// an authentication failure aborts immediately since every following send
// would fail the same way, and the unsent leads stay queued.
func (d *Dispatcher) Run(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport

	leads, err := d.store.ListLeadsReadyToSend(ctx, d.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	report.Picked = len(leads)
	zap.L().Info("dispatch pass starting", zap.Int("picked", len(leads)))

	for i, lead := range leads {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if i > 0 {
			if err := sleepCtx(ctx, d.cfg.SendDelay); err != nil {
				return report, err
			}
		}

		if err := d.sendOne(ctx, lead); err != nil {
			if resilience.IsPermanent(err) {
				zap.L().Error("smtp credentials rejected, aborting dispatch", zap.Error(err))
				return report, err
			}
			report.Failed++
			zap.L().Warn("send failed",
				zap.String("lead_id", lead.ID), zap.Error(err))
			if merr := d.store.MarkLeadFailed(ctx, lead.ID); merr != nil {
				zap.L().Error("failed-status update failed",
					zap.String("lead_id", lead.ID), zap.Error(merr))
			}
			continue
		}
		report.Sent++
	}

	zap.L().Info("dispatch pass finished",
		zap.Int("picked", report.Picked),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, lead model.Lead) error {
	htmlBody, err := RenderHTML(lead.Body)
	if err != nil {
		return err
	}
	msg := Message{
		To:       lead.Email,
		Subject:  lead.Subject,
		TextBody: lead.Body,
		HTMLBody: htmlBody,
	}

	err = resilience.Do(ctx, d.retry, func(ctx context.Context) error {
		return d.transport.Send(ctx, msg)
	})
	if err != nil {
		return err
	}

	if err := d.store.MarkLeadSent(ctx, lead.ID); err != nil {
		return err
	}
	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, lead, msg); err != nil {
			zap.L().Warn("sent-copy archive failed",
				zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
