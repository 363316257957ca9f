package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lshigami/cbtengine/config"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type geminiEvaluator struct {
	client *genai.GenerativeModel
}

// NewGeminiEvaluator builds a Gemini-backed evaluator. Without an API key the
// evaluator is returned unconfigured and every call fails, so scoring falls
// back to manual review.
func NewGeminiEvaluator(cfg *config.Config) (EssayEvaluator, error) {
	if cfg.Evaluator.GeminiApiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set. Essay evaluation will fall back to manual review.")
		return &geminiEvaluator{}, nil
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.Evaluator.GeminiApiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	model := client.GenerativeModel(cfg.Evaluator.GeminiModel)
	model.SetTemperature(0.2)
	return &geminiEvaluator{client: model}, nil
}

func buildEvaluationPrompt(req EvaluationRequest) string {
	var b strings.Builder
	b.WriteString("You are an experienced secondary school examiner.\n")
	b.WriteString("Evaluate the student's answer strictly against the rubric.\n\n")
	b.WriteString("Question:\n---\n")
	b.WriteString(req.Question)
	b.WriteString("\n---\n\nRubric:\n---\n")
	b.WriteString(req.RubricWithMaxMarks)
	b.WriteString("\n---\n\nStudent's Answer:\n---\n")
	b.WriteString(req.StudentAnswer)
	b.WriteString("\n---\n\n")
	b.WriteString(`Reply in exactly this format:
Score: [number between 0 and the maximum marks]
Compliant: [yes or no, whether the answer addresses the question]
Feedback:
[Short constructive feedback for the student]
`)
	return b.String()
}

// parseEvaluation reads the "Score:", "Compliant:" and "Feedback:" sections.
// A missing Compliant line counts as compliant.
func parseEvaluation(raw string) (EvaluationResponse, error) {
	var out EvaluationResponse
	scoreIdx := strings.Index(raw, "Score:")
	if scoreIdx == -1 {
		return out, fmt.Errorf("response does not contain 'Score:' prefix")
	}
	scoreLine := raw[scoreIdx+len("Score:"):]
	if nl := strings.Index(scoreLine, "\n"); nl != -1 {
		scoreLine = scoreLine[:nl]
	}
	fields := strings.Fields(scoreLine)
	if len(fields) == 0 {
		return out, fmt.Errorf("empty score value")
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], ","), 64)
	if err != nil {
		return out, fmt.Errorf("could not parse score value %q: %w", fields[0], err)
	}
	out.Score = score

	out.IsCompliant = true
	if idx := strings.Index(raw, "Compliant:"); idx != -1 {
		line := raw[idx+len("Compliant:"):]
		if nl := strings.Index(line, "\n"); nl != -1 {
			line = line[:nl]
		}
		v := strings.ToLower(strings.TrimSpace(line))
		out.IsCompliant = !strings.HasPrefix(v, "no") && !strings.HasPrefix(v, "false")
	}

	if idx := strings.Index(raw, "Feedback:"); idx != -1 {
		out.Feedback = strings.TrimSpace(raw[idx+len("Feedback:"):])
	}
	return out, nil
}

func (g *geminiEvaluator) Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error) {
	if g.client == nil {
		return EvaluationResponse{}, fmt.Errorf("%w: gemini client not initialized", ErrEvaluationRejected)
	}
	resp, err := g.client.GenerateContent(ctx, genai.Text(buildEvaluationPrompt(req)))
	if err != nil {
		log.Error().Err(err).Msg("Gemini API error during essay evaluation")
		return EvaluationResponse{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return EvaluationResponse{}, fmt.Errorf("gemini returned no content")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return EvaluationResponse{}, fmt.Errorf("gemini returned no text content")
	}

	out, err := parseEvaluation(text.String())
	if err != nil {
		log.Warn().Err(err).Str("rawResponse", text.String()).Msg("Failed to parse Gemini evaluation")
		return EvaluationResponse{}, fmt.Errorf("%w: %v", ErrEvaluationRejected, err)
	}
	return out, nil
}
