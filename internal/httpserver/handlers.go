package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

type handler struct {
	l          *zap.SugaredLogger
	repos      *services.RepositoryManager
	status     *services.StatusMachine
	dispatcher Dispatcher
}

type processBody struct {
	QuestionnaireID         string `json:"questionnaireId"`
	BatchID                 string `json:"batchId"`
	ProcessSingleBatch      bool   `json:"processSingleBatch"`
	ProcessAllBatches       bool   `json:"processAllBatches"`
	GenerateFinalReportOnly bool   `json:"generateFinalReportOnly"`
}

type retryBody struct {
	BatchID string `json:"batchId"`
}

type batchView struct {
	ID            uuid.UUID          `json:"id"`
	BatchNumber   int                `json:"batch_number"`
	Status        models.BatchStatus `json:"status"`
	QuestionCount int                `json:"question_count"`
	ErrorMessage  *string            `json:"error_message,omitempty"`
}

type statusResponse struct {
	Questionnaire *models.Questionnaire `json:"questionnaire"`
	Batches       []batchView           `json:"batches"`
	FinalReport   *models.FinalReport   `json:"final_report,omitempty"`
}

func (h *handler) process(c *gin.Context) {
	var body processBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if body.QuestionnaireID == "" {
		badRequest(c, "questionnaireId is required")
		return
	}
	id, err := uuid.Parse(body.QuestionnaireID)
	if err != nil {
		badRequest(c, "questionnaireId must be a UUID")
		return
	}

	req := services.ProcessRequest{
		QuestionnaireID:         id,
		ProcessSingleBatch:      body.ProcessSingleBatch,
		ProcessAllBatches:       body.ProcessAllBatches,
		GenerateFinalReportOnly: body.GenerateFinalReportOnly,
	}
	if body.BatchID != "" {
		batchID, err := uuid.Parse(body.BatchID)
		if err != nil {
			badRequest(c, "batchId must be a UUID")
			return
		}
		req.BatchID = &batchID
	}

	if !h.checkJob(c, req) {
		return
	}
	h.dispatch(c, req, "Processing started")
}

func (h *handler) nextBatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req := services.ProcessRequest{QuestionnaireID: id, ProcessSingleBatch: true}
	if !h.checkJob(c, req) {
		return
	}
	h.dispatch(c, req, "Next batch started")
}

func (h *handler) retry(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body retryBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	req := services.ProcessRequest{QuestionnaireID: id}
	if body.BatchID != "" {
		batchID, err := uuid.Parse(body.BatchID)
		if err != nil {
			badRequest(c, "batchId must be a UUID")
			return
		}
		req.BatchID = &batchID
	}

	if _, err := h.status.Retry(ctx, id, req.BatchID); err != nil {
		h.mapError(c, err)
		return
	}
	h.dispatch(c, req, "Retry started")
}

func (h *handler) get(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := pathID(c)
	if !ok {
		return
	}

	q, err := h.repos.QuestionnaireRepo.GetByID(ctx, id)
	if err != nil {
		h.mapError(c, err)
		return
	}
	batches, err := h.repos.BatchRepo.ListByQuestionnaire(ctx, id)
	if err != nil {
		h.mapError(c, err)
		return
	}
	report, err := h.repos.FinalReportRepo.GetByQuestionnaire(ctx, id)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		h.mapError(c, err)
		return
	}

	resp := statusResponse{Questionnaire: q, Batches: make([]batchView, 0, len(batches)), FinalReport: report}
	for _, b := range batches {
		resp.Batches = append(resp.Batches, batchView{
			ID:            b.ID,
			BatchNumber:   b.BatchNumber,
			Status:        b.Status,
			QuestionCount: len(b.Questions),
			ErrorMessage:  b.ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// checkJob rejects requests the pipeline would refuse, so the caller gets
// the error instead of a silent background failure.
func (h *handler) checkJob(c *gin.Context, req services.ProcessRequest) bool {
	ctx := c.Request.Context()
	q, err := h.repos.QuestionnaireRepo.GetByID(ctx, req.QuestionnaireID)
	if err != nil {
		h.mapError(c, err)
		return false
	}
	if q.Status == models.JobComplete {
		h.mapError(c, services.ErrAlreadyComplete)
		return false
	}
	if req.BatchID != nil {
		b, err := h.repos.BatchRepo.GetByID(ctx, *req.BatchID)
		if errors.Is(err, services.ErrNotFound) || (err == nil && b.QuestionnaireID != q.ID) {
			h.mapError(c, services.ErrBatchNotInJob)
			return false
		}
		if err != nil {
			h.mapError(c, err)
			return false
		}
	}
	return true
}

func (h *handler) dispatch(c *gin.Context, req services.ProcessRequest, message string) {
	if err := h.dispatcher.Dispatch(c.Request.Context(), req); err != nil {
		h.l.Errorf("[HTTPServer] Failed to dispatch questionnaire %s: %v", req.QuestionnaireID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start processing"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":         message,
		"questionnaireId": req.QuestionnaireID,
		"mode":            req.Mode(),
	})
}

func (h *handler) mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrAlreadyComplete),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrBatchNotInJob):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.l.Errorf("[HTTPServer] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
