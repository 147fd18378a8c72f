package service

import (
	"context"
	"fmt"

	"media-grab/app/logger"

	"github.com/robfig/cron/v3"
)

// Resumer 定时恢复检查的执行者，Manager 实现该接口
type Resumer interface {
	Resume() (SweepReport, error)
}

// RecoveryScheduler 按 cron 表达式定时执行僵尸任务检查
type RecoveryScheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
}

// cronLogger 把 cron 的日志转到 zap
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewRecoveryScheduler 创建定时检查，schedule 为空时返回 nil
func NewRecoveryScheduler(schedule string, resumer Resumer, log *logger.Logger) (*RecoveryScheduler, error) {
	if schedule == "" {
		return nil, nil
	}

	cl := cronLogger{log: log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := resumer.Resume(); err != nil {
			log.Errorf("定时恢复检查失败: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("无效的恢复检查计划 %q: %w", schedule, err)
	}

	return &RecoveryScheduler{cron: c, logger: log}, nil
}

// Start 开始定时检查
func (s *RecoveryScheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	s.logger.Infof("定时恢复检查已启动")
}

// Stop 停止调度并等待正在执行的检查结束
func (s *RecoveryScheduler) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
