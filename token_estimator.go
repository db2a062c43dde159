package weaver

import (
	"math"
)

// TokenEstimator approximates how many tokens a prompt costs against a
// model's rate limit.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// SimpleTokenEstimator uses a characters-per-token heuristic with a margin.
type SimpleTokenEstimator struct {
	SafetyMargin float64
}

func NewSimpleTokenEstimator() *SimpleTokenEstimator {
	return &SimpleTokenEstimator{
		SafetyMargin: 1.2,
	}
}

func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	tokenEstimate := float64(PromptLength(text)) / 4.0 * e.SafetyMargin

	return int(math.Ceil(tokenEstimate)) + 3
}
