package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lshigami/cbtengine/config"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/wait"
)

// EvaluationRequest is the essay-evaluation service contract input.
type EvaluationRequest struct {
	Question           string `json:"question"`
	RubricWithMaxMarks string `json:"rubricWithMaxMarks"`
	StudentAnswer      string `json:"studentAnswer"`
}

// EvaluationResponse is returned by the evaluator. Score is unclamped.
type EvaluationResponse struct {
	Score       float64 `json:"score"`
	Feedback    string  `json:"feedback"`
	IsCompliant bool    `json:"isCompliant"`
}

// EssayEvaluator scores a free-text answer against a rubric.
type EssayEvaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error)
}

// RubricWithMaxMarks renders the rubric text the evaluator receives.
func RubricWithMaxMarks(rubric string, marks int) string {
	return fmt.Sprintf("%s\n\nMaximum marks: %d", strings.TrimSpace(rubric), marks)
}

// NewEssayEvaluator builds the configured evaluator wrapped with a bounded,
// per-call-timed retry.
func NewEssayEvaluator(cfg *config.Config) (EssayEvaluator, error) {
	var base EssayEvaluator
	switch strings.ToLower(cfg.Evaluator.Driver) {
	case "http":
		base = NewHTTPEvaluator(cfg.Evaluator.URL, nil)
	case "gemini", "":
		g, err := NewGeminiEvaluator(cfg)
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("unknown evaluator driver %q", cfg.Evaluator.Driver)
	}
	log.Info().Str("driver", cfg.Evaluator.Driver).Int("maxRetries", cfg.Evaluator.MaxRetries).Msg("Essay evaluator configured")
	return NewRetryingEvaluator(base, cfg.Evaluator.Timeout, DefaultEvaluatorBackoff(cfg.Evaluator.MaxRetries)), nil
}

// DefaultEvaluatorBackoff allows maxRetries retries after the first call.
func DefaultEvaluatorBackoff(maxRetries int) wait.Backoff {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return wait.Backoff{
		Steps:    maxRetries + 1,
		Duration: 500 * time.Millisecond,
		Factor:   2.0,
		Jitter:   0.1,
	}
}
