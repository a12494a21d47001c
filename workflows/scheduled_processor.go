// workflows/scheduled_processor.go
package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

// ScheduledProcessor resumes questionnaires whose invocation died while
// processing. A stalled job is re-dispatched in all-batches mode; complete
// batches are skipped, so only the unfinished work runs again.
type ScheduledProcessor struct {
	status     *services.StatusMachine
	dispatcher Dispatcher
	cfg        config.PipelineConfig
	client     inngestgo.Client
	log        *zap.SugaredLogger
}

func NewScheduledProcessor(status *services.StatusMachine, dispatcher Dispatcher, cfg config.PipelineConfig, log *zap.SugaredLogger) *ScheduledProcessor {
	return &ScheduledProcessor{
		status:     status,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

func (p *ScheduledProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// Sweep dispatches every stalled questionnaire once and returns how many
// were resumed. A failed dispatch is logged and does not stop the sweep.
func (p *ScheduledProcessor) Sweep(ctx context.Context) (int, error) {
	ids, err := p.status.StalledJobs(ctx, p.cfg.StallAfter, p.cfg.ResumeLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled questionnaires: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		if err := p.resume(ctx, id); err != nil {
			p.log.Warnf("[Scheduler] Failed to resume questionnaire %s: %v", id, err)
			continue
		}
		resumed++
	}
	if len(ids) > 0 {
		p.log.Infof("[Scheduler] Resumed %d of %d stalled questionnaires", resumed, len(ids))
	}
	return resumed, nil
}

func (p *ScheduledProcessor) resume(ctx context.Context, id uuid.UUID) error {
	return p.dispatcher.Dispatch(ctx, services.ProcessRequest{QuestionnaireID: id})
}

// RunLocal sweeps every interval until ctx is done. It replaces the cron
// function when the local dispatcher is used.
func (p *ScheduledProcessor) RunLocal(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil {
				p.log.Errorf("[Scheduler] %v", err)
			}
		}
	}
}

func (p *ScheduledProcessor) ResumeStalledReports() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "resume-stalled-reports",
			Name: "Resume Stalled Brand Visibility Reports",
		},
		inngestgo.CronTrigger(p.cfg.ResumeCron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			ids, err := step.Run(ctx, "list-stalled", func(ctx context.Context) ([]uuid.UUID, error) {
				return p.status.StalledJobs(ctx, p.cfg.StallAfter, p.cfg.ResumeLimit)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list stalled questionnaires: %w", err)
			}

			resumed := make([]string, 0, len(ids))
			for _, id := range ids {
				_, err := step.Run(ctx, fmt.Sprintf("resume-%s", id), func(ctx context.Context) (string, error) {
					return p.client.Send(ctx, NewProcessEvent(services.ProcessRequest{QuestionnaireID: id}, "automatic_scheduler"))
				})
				if err != nil {
					p.log.Warnf("[Scheduler] Failed to send resume event for %s: %v", id, err)
					continue
				}
				resumed = append(resumed, id.String())
			}

			return map[string]interface{}{
				"stalled_found": len(ids),
				"resumed":       resumed,
				"stall_after":   p.cfg.StallAfter.String(),
			}, nil
		},
	)

	if err != nil {
		p.log.Errorf("Failed to create resume-stalled-reports function: %v", err)
	}

	return fn
}
