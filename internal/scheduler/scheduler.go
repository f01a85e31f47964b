package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/supportbot/storebot-go/internal/config"
	"go.uber.org/zap"
)

// sweepTimeout 单次清理任务超时
const sweepTimeout = 30 * time.Second

// ContextSweeper 会话上下文清理
type ContextSweeper interface {
	Sweep(ctx context.Context, now time.Time, maxIdle time.Duration) int
}

// Scheduler 定时任务
type Scheduler struct {
	ctab     *crontab.Crontab
	contexts ContextSweeper
	cfg      config.ChatConfig
	logger   *zap.Logger
}

// NewScheduler 创建定时任务调度器
func NewScheduler(contexts ContextSweeper, cfg config.ChatConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		ctab:     crontab.New(),
		contexts: contexts,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run 注册任务并阻塞到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.ctab.AddJob(s.cfg.SweepSchedule, s.sweep); err != nil {
		return fmt.Errorf("注册上下文清理任务失败: %w", err)
	}
	s.logger.Info("上下文清理任务已启动",
		zap.String("schedule", s.cfg.SweepSchedule),
		zap.Duration("maxIdle", s.cfg.ContextMaxIdle))

	<-ctx.Done()
	s.ctab.Shutdown()
	return nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.contexts.Sweep(ctx, time.Now(), s.cfg.ContextMaxIdle)
}
