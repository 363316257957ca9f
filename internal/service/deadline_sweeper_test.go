package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineSweeper_ForcesExpiredAttempts(t *testing.T) {
	f := newAttemptFixture(t, examTest())
	ctx := context.Background()
	_, err := f.svc.BeginAttempt(ctx, "stu-1", f.test.ID)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.BeginAttempt(ctx, "stu-2", f.test.ID)
	require.NoError(t, err)

	sweeper := NewDeadlineSweeper(f.attempts, f.svc, testConfig(), f.clock.Now)

	// stu-1 expires at +30m, but the grace period holds the sweep off until +30m30s.
	f.clock.Advance(20*time.Minute + 10*time.Second)
	sweeper.Sweep(ctx)
	first, _ := f.attempts.FindByTestAndStudent(ctx, f.test.ID, "stu-1")
	assert.False(t, first.IsSubmitted())

	f.clock.Advance(time.Minute)
	sweeper.Sweep(ctx)
	first, _ = f.attempts.FindByTestAndStudent(ctx, f.test.ID, "stu-1")
	assert.True(t, first.IsSubmitted())
	assert.True(t, first.AutoSubmitted)
	assert.True(t, first.IsScored())

	second, _ := f.attempts.FindByTestAndStudent(ctx, f.test.ID, "stu-2")
	assert.False(t, second.IsSubmitted(), "stu-2 still has time")

	sweeper.Sweep(ctx)
	assert.Equal(t, 1, f.attempts.scoreWrites)
}

func TestDeadlineSweeper_RescoresStaleUnscored(t *testing.T) {
	f := newAttemptFixture(t, examTest())
	ctx := context.Background()
	_, err := f.svc.BeginAttempt(ctx, "stu-1", f.test.ID)
	require.NoError(t, err)

	f.attempts.saveScoreFn = func() error { return fmt.Errorf("db down") }
	_, err = f.svc.SubmitAttempt(ctx, "stu-1", f.test.ID, emptyAnswers())
	require.NoError(t, err)
	f.attempts.saveScoreFn = nil

	sweeper := NewDeadlineSweeper(f.attempts, f.svc, testConfig(), f.clock.Now)
	sweeper.Sweep(ctx)
	stored, _ := f.attempts.FindByTestAndStudent(ctx, f.test.ID, "stu-1")
	assert.False(t, stored.IsScored(), "too recent to rescore")

	f.clock.Advance(6 * time.Minute)
	sweeper.Sweep(ctx)
	stored, _ = f.attempts.FindByTestAndStudent(ctx, f.test.ID, "stu-1")
	assert.True(t, stored.IsScored())
}

func TestDeadlineSweeper_RunStopsOnCancel(t *testing.T) {
	f := newAttemptFixture(t, examTest())
	cfg := testConfig()
	cfg.Timer.SweepInterval = 5 * time.Millisecond
	sweeper := NewDeadlineSweeper(f.attempts, f.svc, cfg, f.clock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
