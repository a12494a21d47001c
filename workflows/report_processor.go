// workflows/report_processor.go
package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

// ProcessEventName triggers the questionnaire workflow.
const ProcessEventName = "report/questionnaire.process"

// ProcessQuestionnaireEvent is the event payload; field names match the HTTP body.
type ProcessQuestionnaireEvent struct {
	QuestionnaireID         string `json:"questionnaireId"`
	BatchID                 string `json:"batchId,omitempty"`
	ProcessSingleBatch      bool   `json:"processSingleBatch,omitempty"`
	ProcessAllBatches       bool   `json:"processAllBatches,omitempty"`
	GenerateFinalReportOnly bool   `json:"generateFinalReportOnly,omitempty"`
	TriggeredBy             string `json:"triggered_by,omitempty"`
}

// Request converts the payload back into a ProcessRequest.
func (e ProcessQuestionnaireEvent) Request() (services.ProcessRequest, error) {
	id, err := uuid.Parse(e.QuestionnaireID)
	if err != nil {
		return services.ProcessRequest{}, fmt.Errorf("invalid questionnaireId %q: %w", e.QuestionnaireID, err)
	}
	req := services.ProcessRequest{
		QuestionnaireID:         id,
		ProcessSingleBatch:      e.ProcessSingleBatch,
		ProcessAllBatches:       e.ProcessAllBatches,
		GenerateFinalReportOnly: e.GenerateFinalReportOnly,
	}
	if e.BatchID != "" {
		batchID, err := uuid.Parse(e.BatchID)
		if err != nil {
			return services.ProcessRequest{}, fmt.Errorf("invalid batchId %q: %w", e.BatchID, err)
		}
		req.BatchID = &batchID
	}
	return req, nil
}

// NewProcessEvent builds the event that starts processing of req.
func NewProcessEvent(req services.ProcessRequest, triggeredBy string) inngestgo.Event {
	data := map[string]interface{}{
		"questionnaireId":         req.QuestionnaireID.String(),
		"processSingleBatch":      req.ProcessSingleBatch,
		"processAllBatches":       req.ProcessAllBatches,
		"generateFinalReportOnly": req.GenerateFinalReportOnly,
		"triggered_by":            triggeredBy,
	}
	if req.BatchID != nil {
		data["batchId"] = req.BatchID.String()
	}
	return inngestgo.Event{Name: ProcessEventName, Data: data}
}

// prepareOutcome is memoized by the prepare step.
type prepareOutcome struct {
	Job     *services.PreparedJob `json:"job,omitempty"`
	Skipped string                `json:"skipped,omitempty"`
}

type ReportProcessor struct {
	pipeline *services.Pipeline
	client   inngestgo.Client
	log      *zap.SugaredLogger
}

func NewReportProcessor(pipeline *services.Pipeline, log *zap.SugaredLogger) *ReportProcessor {
	return &ReportProcessor{pipeline: pipeline, log: log}
}

func (p *ReportProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// ProcessQuestionnaire registers the durable workflow: one step to prepare,
// one step per batch, one step to finish. Function retries are disabled;
// failed work is resumed through the retry endpoint.
func (p *ReportProcessor) ProcessQuestionnaire() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "process-questionnaire",
			Name:    "Process Brand Visibility Questionnaire",
			Retries: inngestgo.IntPtr(0),
		},
		inngestgo.EventTrigger(ProcessEventName, nil),
		func(ctx context.Context, input inngestgo.Input[ProcessQuestionnaireEvent]) (any, error) {
			req, err := input.Event.Data.Request()
			if err != nil {
				return nil, err
			}
			p.log.Infof("[ProcessQuestionnaire] Starting %s run for questionnaire %s", req.Mode(), req.QuestionnaireID)

			prepared, err := step.Run(ctx, "prepare", func(ctx context.Context) (*prepareOutcome, error) {
				job, err := p.pipeline.Prepare(ctx, req)
				if errors.Is(err, services.ErrAlreadyComplete) {
					return &prepareOutcome{Skipped: err.Error()}, nil
				}
				if err != nil {
					return nil, err
				}
				return &prepareOutcome{Job: job}, nil
			})
			if err != nil {
				return nil, fmt.Errorf("prepare failed: %w", err)
			}
			if prepared.Job == nil {
				p.log.Infof("[ProcessQuestionnaire] Nothing to do for %s: %s", req.QuestionnaireID, prepared.Skipped)
				return map[string]interface{}{"questionnaire_id": req.QuestionnaireID.String(), "status": "skipped", "reason": prepared.Skipped}, nil
			}
			job := prepared.Job

			results := make([]*services.BatchResult, 0, len(job.BatchIDs))
			for _, batchID := range job.BatchIDs {
				result, err := step.Run(ctx, fmt.Sprintf("process-batch-%s", batchID), func(ctx context.Context) (*services.BatchResult, error) {
					return p.pipeline.RunBatch(ctx, job.QuestionnaireID, batchID)
				})
				if err != nil {
					return nil, fmt.Errorf("batch %s failed: %w", batchID, err)
				}
				results = append(results, result)
			}

			final, err := step.Run(ctx, "finalize", func(ctx context.Context) (map[string]interface{}, error) {
				report, err := p.pipeline.Finish(ctx, job)
				if err != nil {
					return nil, err
				}
				out := map[string]interface{}{"report_ready": report != nil}
				if report != nil {
					out["report_id"] = report.ID.String()
					out["total_tokens"] = report.TotalTokens
					out["cost_eur"] = report.CostEUR
					out["cost_alert"] = report.CostAlert
				}
				return out, nil
			})
			if err != nil {
				return nil, fmt.Errorf("finalize failed: %w", err)
			}

			p.log.Infof("[ProcessQuestionnaire] Finished questionnaire %s: %d batches run", job.QuestionnaireID, len(results))
			return map[string]interface{}{
				"questionnaire_id": job.QuestionnaireID.String(),
				"mode":             job.Mode,
				"batches":          results,
				"final":            final,
			}, nil
		},
	)
	if err != nil {
		p.log.Errorf("Failed to create process-questionnaire function: %v", err)
	}
	return fn
}
