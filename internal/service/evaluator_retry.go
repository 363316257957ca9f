package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

type retryingEvaluator struct {
	next    EssayEvaluator
	timeout time.Duration
	backoff wait.Backoff
}

// NewRetryingEvaluator retries transient evaluator failures within backoff.Steps
// calls, each bounded by timeout. Errors matching ErrEvaluationRejected are
// not retried. Every failure surfaces as ErrEvaluationUnavailable.
func NewRetryingEvaluator(next EssayEvaluator, timeout time.Duration, backoff wait.Backoff) EssayEvaluator {
	if backoff.Steps < 1 {
		backoff.Steps = 1
	}
	return &retryingEvaluator{next: next, timeout: timeout, backoff: backoff}
}

func (r *retryingEvaluator) Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error) {
	var (
		out   EvaluationResponse
		calls int
	)
	err := retry.OnError(r.backoff, func(err error) bool {
		// Stop once the caller gave up; retrying would only burn the budget.
		return ctx.Err() == nil && !errors.Is(err, ErrEvaluationRejected)
	}, func() error {
		calls++
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		resp, err := r.next.Evaluate(callCtx, req)
		if err != nil {
			log.Warn().Err(err).Int("call", calls).Msg("Essay evaluation call failed")
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return EvaluationResponse{}, errors.Wrapf(ErrEvaluationUnavailable, "after %d call(s): %v", calls, err)
	}
	return out, nil
}
