package power

import (
	"os/exec"
	"sync"

	"media-grab/app/logger"
)

// Inhibitor 下载期间通过 systemd-inhibit 阻止系统休眠。
// Acquire/Release 由协调器在持锁状态下调用，只记录期望状态，
// 进程的启动和结束在后台 goroutine 中完成。
type Inhibitor struct {
	enabled bool
	path    string
	logger  *logger.Logger

	mu   sync.Mutex
	want bool
	cmd  *exec.Cmd

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewInhibitor 创建防休眠钩子，enabled 为 false 时只记录日志
func NewInhibitor(enabled bool, path string, log *logger.Logger) *Inhibitor {
	if path == "" {
		path = "systemd-inhibit"
	}
	i := &Inhibitor{
		enabled: enabled,
		path:    path,
		logger:  log,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if enabled {
		i.wg.Add(1)
		go i.run()
	}
	return i
}

// Acquire 第一个下载开始时调用
func (i *Inhibitor) Acquire() {
	if !i.enabled {
		i.logger.Debugf("下载开始，防休眠未启用")
		return
	}
	i.set(true)
}

// Release 最后一个下载结束时调用
func (i *Inhibitor) Release() {
	if !i.enabled {
		i.logger.Debugf("所有下载已结束")
		return
	}
	i.set(false)
}

func (i *Inhibitor) set(want bool) {
	i.mu.Lock()
	i.want = want
	i.mu.Unlock()

	select {
	case i.wake <- struct{}{}:
	default:
	}
}

func (i *Inhibitor) run() {
	defer i.wg.Done()

	for {
		select {
		case <-i.wake:
			i.reconcile()
		case <-i.done:
			i.mu.Lock()
			i.want = false
			i.mu.Unlock()
			i.reconcile()
			return
		}
	}
}

// reconcile 让进程状态与期望一致
func (i *Inhibitor) reconcile() {
	i.mu.Lock()
	want, cmd := i.want, i.cmd
	i.mu.Unlock()

	switch {
	case want && cmd == nil:
		cmd = exec.Command(i.path,
			"--what=sleep:idle",
			"--who=media-grab",
			"--why=正在下载",
			"--mode=block",
			"sleep", "infinity",
		)
		if err := cmd.Start(); err != nil {
			i.logger.Warnf("启动 %s 失败，无法阻止休眠: %v", i.path, err)
			return
		}
		go func() { _ = cmd.Wait() }()

		i.mu.Lock()
		i.cmd = cmd
		i.mu.Unlock()
		i.logger.Infof("已阻止系统休眠 (pid=%d)", cmd.Process.Pid)

	case !want && cmd != nil:
		if err := cmd.Process.Kill(); err != nil {
			i.logger.Warnf("结束防休眠进程失败: %v", err)
		}

		i.mu.Lock()
		i.cmd = nil
		i.mu.Unlock()
		i.logger.Infof("已恢复系统休眠")
	}
}

// Held 当前是否持有防休眠锁
func (i *Inhibitor) Held() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cmd != nil
}

// Close 停止后台 goroutine 并释放防休眠锁
func (i *Inhibitor) Close() {
	i.closeOnce.Do(func() { close(i.done) })
	i.wg.Wait()
}
