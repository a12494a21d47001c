// services/cost_service.go
package services

import (
	"math"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
)

type costService struct {
	per1KTokensEUR float64
	limitEUR       float64
}

func NewCostService(cfg config.PipelineConfig) CostService {
	return &costService{
		per1KTokensEUR: cfg.CostPer1KTokensEUR,
		limitEUR:       cfg.CostLimitEUR,
	}
}

func (s *costService) CalculateCost(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	cost := float64(tokens) / 1000.0 * s.per1KTokensEUR
	// cost_eur is NUMERIC(12,4)
	return math.Round(cost*10000) / 10000
}

func (s *costService) ExceedsLimit(costEUR float64) bool {
	return costEUR > s.limitEUR
}
