package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"media-grab/app/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner 执行单个任务，Executor 实现该接口
type Runner interface {
	Run(ctx context.Context, id uint, url string, cb Callbacks) Outcome
}

type execution struct {
	runID     uuid.UUID
	cancel    context.CancelFunc
	url       string
	startedAt time.Time
	done      chan struct{}
}

// Coordinator 管理正在运行的下载，保证每个任务最多一个执行
type Coordinator struct {
	runner Runner
	power  PowerHook
	logger *logger.Logger

	mu     sync.Mutex
	active map[uint]*execution
	closed bool

	ctx    context.Context
	cancel context.CancelCauseFunc
	group  errgroup.Group
}

// NewCoordinator 创建下载协调器，power 可以为 nil
func NewCoordinator(runner Runner, power PowerHook, log *logger.Logger) *Coordinator {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Coordinator{
		runner: runner,
		power:  power,
		logger: log,
		active: make(map[uint]*execution),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动任务的下载。任务已在运行时直接返回 false。
func (c *Coordinator) Start(id uint, url string, cb Callbacks) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Warnf("协调器已关闭，忽略任务 %d", id)
		return false
	}
	if _, ok := c.active[id]; ok {
		c.logger.Debugf("任务 %d 已在运行", id)
		return false
	}

	ctx, cancel := context.WithCancel(c.ctx)
	exec := &execution{
		runID:     uuid.New(),
		cancel:    cancel,
		url:       url,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	c.active[id] = exec
	if len(c.active) == 1 && c.power != nil {
		c.power.Acquire()
	}

	c.group.Go(func() error {
		defer c.finish(id, exec.runID)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Errorf("任务 %d 执行异常: %v", id, r)
			}
		}()

		outcome := c.runner.Run(ctx, id, url, cb)
		c.logger.Infof("任务 %d 结束: %s, 用时 %s", id, outcome, time.Since(exec.startedAt).Round(time.Millisecond))
		return nil
	})

	c.logger.Infof("任务 %d 已启动 (run=%s)", id, exec.runID)
	return true
}

// finish 只移除属于本次执行的登记，避免误删重新启动的执行
func (c *Coordinator) finish(id uint, runID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exec, ok := c.active[id]
	if !ok || exec.runID != runID {
		return
	}
	delete(c.active, id)
	close(exec.done)
	if len(c.active) == 0 && c.power != nil {
		c.power.Release()
	}
}

// Stop 请求取消任务，任务未运行时为空操作
func (c *Coordinator) Stop(id uint) bool {
	c.mu.Lock()
	exec, ok := c.active[id]
	c.mu.Unlock()

	if !ok {
		return false
	}
	exec.cancel()
	c.logger.Infof("已请求停止任务 %d", id)
	return true
}

// Wait 等待任务当前的执行结束，任务未运行时立即返回
func (c *Coordinator) Wait(ctx context.Context, id uint) error {
	c.mu.Lock()
	exec, ok := c.active[id]
	c.mu.Unlock()

	if !ok {
		return nil
	}
	select {
	case <-exec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning 任务当前是否有执行
func (c *Coordinator) IsRunning(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[id]
	return ok
}

// ActiveCount 正在运行的任务数量
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Active 返回正在运行的任务ID，按ID升序
func (c *Coordinator) Active() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uint, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Shutdown 取消全部执行并等待其退出。被中断的任务保持 Downloading，
// 下次启动时由恢复检查重新启动或降级为暂停。
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel(errShuttingDown)

	done := make(chan struct{})
	go func() {
		_ = c.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Infof("所有下载已停止")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待下载停止超时，仍有 %d 个任务: %w", c.ActiveCount(), ctx.Err())
	}
}
