package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEvaluator_Contract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Q", body["question"])
		assert.Equal(t, "R", body["rubricWithMaxMarks"])
		assert.Equal(t, "A", body["studentAnswer"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"score": 3.5, "feedback": "solid", "isCompliant": true,
		})
	}))
	defer srv.Close()

	resp, err := NewHTTPEvaluator(srv.URL, srv.Client()).Evaluate(context.Background(),
		EvaluationRequest{Question: "Q", RubricWithMaxMarks: "R", StudentAnswer: "A"})
	require.NoError(t, err)
	assert.Equal(t, EvaluationResponse{Score: 3.5, Feedback: "solid", IsCompliant: true}, resp)
}

func TestHTTPEvaluator_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPEvaluator(srv.URL, srv.Client()).Evaluate(context.Background(), EvaluationRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.False(t, errors.Is(err, ErrEvaluationRejected), "server errors stay retryable")
}

func TestHTTPEvaluator_StatusClassification(t *testing.T) {
	cases := []struct {
		status   int
		rejected bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewHTTPEvaluator(srv.URL, srv.Client()).Evaluate(context.Background(), EvaluationRequest{})
			require.Error(t, err)
			assert.Equal(t, tc.rejected, errors.Is(err, ErrEvaluationRejected))
		})
	}
}

func TestHTTPEvaluator_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "missing rubric", http.StatusBadRequest)
	}))
	defer srv.Close()

	ev := NewRetryingEvaluator(NewHTTPEvaluator(srv.URL, srv.Client()), time.Second, quickBackoff(4))
	_, err := ev.Evaluate(context.Background(), EvaluationRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEvaluationUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPEvaluator_MissingURL(t *testing.T) {
	_, err := NewHTTPEvaluator("", nil).Evaluate(context.Background(), EvaluationRequest{})
	assert.True(t, errors.Is(err, ErrEvaluationRejected))
}

func TestNewEssayEvaluator_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Evaluator.Driver = "carrier-pigeon"
	_, err := NewEssayEvaluator(cfg)
	assert.Error(t, err)
}
