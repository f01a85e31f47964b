package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supportbot/storebot-go/internal/config"
	"go.uber.org/zap"
)

type recordingSweeper struct {
	mu      sync.Mutex
	calls   int
	maxIdle time.Duration
}

func (r *recordingSweeper) Sweep(ctx context.Context, now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.maxIdle = maxIdle
	return 0
}

func TestSweepUsesConfiguredIdle(t *testing.T) {
	sweeper := &recordingSweeper{}
	s := NewScheduler(sweeper, config.ChatConfig{SweepSchedule: "* * * * *", ContextMaxIdle: time.Hour}, zap.NewNop())

	s.sweep()
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, time.Hour, sweeper.maxIdle)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&recordingSweeper{}, config.ChatConfig{SweepSchedule: "not a cron"}, zap.NewNop())
	assert.Error(t, s.Run(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewScheduler(&recordingSweeper{}, config.ChatConfig{SweepSchedule: "* * * * *", ContextMaxIdle: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未退出")
	}
}
