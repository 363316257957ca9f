package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type httpEvaluator struct {
	url    string
	client *http.Client
}

// NewHTTPEvaluator posts EvaluationRequest as JSON to url and expects an
// EvaluationResponse body. A nil client uses http.DefaultClient.
func NewHTTPEvaluator(url string, client *http.Client) EssayEvaluator {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpEvaluator{url: url, client: client}
}

func (h *httpEvaluator) Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error) {
	if h.url == "" {
		return EvaluationResponse{}, fmt.Errorf("%w: evaluator url not configured", ErrEvaluationRejected)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return EvaluationResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return EvaluationResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return EvaluationResponse{}, fmt.Errorf("evaluator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("evaluator returned status %d: %s", resp.StatusCode, snippet)
		if permanentStatus(resp.StatusCode) {
			return EvaluationResponse{}, fmt.Errorf("%w: %v", ErrEvaluationRejected, err)
		}
		return EvaluationResponse{}, err
	}

	var out EvaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return EvaluationResponse{}, fmt.Errorf("failed to decode evaluator response: %w", err)
	}
	return out, nil
}

// permanentStatus reports client errors other than timeouts and throttling.
func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
