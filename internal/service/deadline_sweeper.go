package service

import (
	"context"
	"time"

	"github.com/lshigami/cbtengine/config"
	"github.com/lshigami/cbtengine/internal/repository"
	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DeadlineSweeper force-submits attempts whose deadline passed without a
// submission and rescores submitted attempts that were never scored.
type DeadlineSweeper struct {
	attemptRepo  repository.AttemptRepository
	attempts     AttemptService
	interval     time.Duration
	grace        time.Duration
	rescoreAfter time.Duration
	now          Clock
}

func NewDeadlineSweeper(attemptRepo repository.AttemptRepository, attempts AttemptService, cfg *config.Config, now Clock) *DeadlineSweeper {
	if now == nil {
		now = SystemClock
	}
	interval := cfg.Timer.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &DeadlineSweeper{
		attemptRepo:  attemptRepo,
		attempts:     attempts,
		interval:     interval,
		grace:        cfg.Timer.SubmissionGrace,
		rescoreAfter: cfg.Timer.RescoreAfter,
		now:          now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (d *DeadlineSweeper) Run(ctx context.Context) {
	log.Info().Dur("interval", d.interval).Dur("grace", d.grace).Msg("Deadline sweeper started")
	wait.UntilWithContext(ctx, d.Sweep, d.interval)
	log.Info().Msg("Deadline sweeper stopped")
}

func (d *DeadlineSweeper) Sweep(ctx context.Context) {
	now := d.now()

	expired, err := d.attemptRepo.ListExpiredUnsubmitted(ctx, now.Add(-d.grace))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired attempts")
	}
	for _, a := range expired {
		if ctx.Err() != nil {
			return
		}
		if err := d.attempts.ForceSubmit(ctx, a.ID); err != nil {
			log.Error().Err(err).Uint("attemptID", a.ID).Msg("Forced submission failed")
		}
	}

	if d.rescoreAfter <= 0 {
		return
	}
	unscored, err := d.attemptRepo.ListUnscored(ctx, now.Add(-d.rescoreAfter))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list unscored attempts")
		return
	}
	for _, a := range unscored {
		if ctx.Err() != nil {
			return
		}
		if err := d.attempts.Rescore(ctx, a.ID); err != nil {
			log.Error().Err(err).Uint("attemptID", a.ID).Msg("Rescore failed")
		}
	}
	if len(expired) > 0 || len(unscored) > 0 {
		log.Info().Int("forced", len(expired)).Int("rescored", len(unscored)).Msg("Deadline sweep finished")
	}
}
