package services

import (
	"errors"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

var (
	ErrNotFound          = interfaces.ErrNotFound
	ErrInvalidTransition = interfaces.ErrInvalidTransition

	// ErrQuestionGeneration covers unusable generator output.
	ErrQuestionGeneration = errors.New("question generation failed")
	// ErrBatchesIncomplete is returned when a report is requested before every batch is complete.
	ErrBatchesIncomplete = errors.New("batches incomplete")
	// ErrBatchLeased means another invocation is processing the batch.
	ErrBatchLeased = errors.New("batch is being processed elsewhere")
	// ErrReportLeased means another invocation is generating the final report.
	ErrReportLeased = errors.New("final report is being generated elsewhere")
	ErrAlreadyComplete = errors.New("questionnaire already complete")
	ErrBatchNotInJob   = errors.New("batch does not belong to questionnaire")
	// ErrNoJSON is returned when a completion contains no well-formed JSON value of the wanted kind.
	ErrNoJSON = errors.New("no JSON found in completion")
)
