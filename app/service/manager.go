package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"media-grab/app/downloader"
	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/store"
	"media-grab/app/utils/pathhelper"
)

var (
	// ErrTaskCompleted 已完成的任务不能再次启动
	ErrTaskCompleted = errors.New("任务已完成")
	// ErrTaskStopping 下载进程没有在限定时间内退出
	ErrTaskStopping = errors.New("任务仍在停止中，请稍后重试")
)

const defaultStopTimeout = 15 * time.Second

// Views 任务的界面句柄集合，由 hub 实现
type Views interface {
	HandleLookup
	Attach(id uint) Callbacks
	Detach(id uint)
}

// StatusSummary 运行状态概览
type StatusSummary struct {
	Active   int                        `json:"active"`
	Running  []uint                     `json:"running"`
	ByStatus map[model.TaskStatus]int64 `json:"by_status"`
}

// Manager 对外提供的任务操作入口，API、命令行和监控目录共用
type Manager struct {
	store       *store.TaskStore
	coordinator *Coordinator
	recovery    *Recovery
	views       Views
	outputDir   string
	autoResume  bool
	stopTimeout time.Duration
	logger      *logger.Logger
}

// NewManager 创建任务管理器
func NewManager(st *store.TaskStore, coordinator *Coordinator, views Views, outputDir string, autoResume bool, log *logger.Logger) *Manager {
	return &Manager{
		store:       st,
		coordinator: coordinator,
		recovery:    NewRecovery(st, coordinator, views, log.Named("recovery")),
		views:       views,
		outputDir:   outputDir,
		autoResume:  autoResume,
		stopTimeout: defaultStopTimeout,
		logger:      log,
	}
}

// SetStopTimeout 删除任务时等待下载进程退出的最长时间
func (m *Manager) SetStopTimeout(d time.Duration) {
	if d > 0 {
		m.stopTimeout = d
	}
}

// Submit 校验链接，创建任务并立即开始下载。校验失败时不会创建任务。
func (m *Manager) Submit(raw string) (*model.DownloadTask, error) {
	link, kind, err := downloader.ValidateSubmission(raw)
	if err != nil {
		return nil, err
	}

	id, err := m.store.Create(link)
	if err != nil {
		return nil, err
	}
	m.logger.Infof("新建任务 %d (%s): %s", id, kind, link)

	m.coordinator.Start(id, link, m.attach(id))
	return m.store.Get(id)
}

// Start 启动或恢复任务，已在运行时为空操作
func (m *Manager) Start(id uint) (*model.DownloadTask, error) {
	task, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Status == model.TaskStatusCompleted {
		return task, ErrTaskCompleted
	}

	m.coordinator.Start(task.ID, task.URL, m.attach(task.ID))
	return task, nil
}

// Stop 请求停止任务。任务没有在运行但记录仍是 Downloading 时直接改为暂停。
func (m *Manager) Stop(id uint) (*model.DownloadTask, error) {
	task, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	if m.coordinator.Stop(id) {
		return task, nil
	}
	if task.Status == model.TaskStatusDownloading {
		if _, err := m.store.TransitionStatus(id, model.TaskStatusDownloading, model.TaskStatusPaused); err != nil {
			return nil, err
		}
		return m.store.Get(id)
	}
	return task, nil
}

// Delete 删除任务记录，deleteFile 为 true 时同时删除下载目录中的文件
func (m *Manager) Delete(id uint, deleteFile bool) error {
	task, err := m.store.Get(id)
	if err != nil {
		return err
	}

	// 下载进程退出前仍可能写入文件，等它结束再删除
	if m.coordinator.Stop(id) {
		ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
		err := m.coordinator.Wait(ctx, id)
		cancel()
		if err != nil {
			m.logger.Warnf("任务 %d 在 %s 内没有停止", id, m.stopTimeout)
			return ErrTaskStopping
		}
	}

	ok, err := m.store.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrTaskNotFound
	}
	if m.views != nil {
		m.views.Detach(id)
	}

	if task.ThumbnailPath != "" {
		m.removeFile(task.ThumbnailPath)
	}
	if deleteFile && task.FilePath != "" {
		m.removeFile(task.FilePath)
	}
	m.logger.Infof("已删除任务 %d", id)
	return nil
}

// removeFile 只删除下载目录内部的路径，下载目录本身不删
func (m *Manager) removeFile(path string) {
	if !pathhelper.IsSubPath(path, m.outputDir) {
		m.logger.Warnf("文件不在下载目录中，跳过删除: %s", path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		m.logger.Warnf("删除文件失败: %v", err)
		return
	}
	m.logger.Infof("已删除文件: %s", path)
}

// ClearHistory 删除所有已完成任务的记录，文件保留
func (m *Manager) ClearHistory() (int64, error) {
	n, err := m.store.DeleteByStatus(model.TaskStatusCompleted)
	if err != nil {
		return 0, err
	}
	m.logger.Infof("已清空下载历史，共 %d 条", n)
	return n, nil
}

// Get 读取单个任务
func (m *Manager) Get(id uint) (*model.DownloadTask, error) {
	return m.store.Get(id)
}

// List 按状态列出任务，最新的在前
func (m *Manager) List(statuses ...model.TaskStatus) ([]model.DownloadTask, error) {
	return m.store.List(statuses...)
}

// Known 链接是否已经提交过
func (m *Manager) Known(url string) (bool, error) {
	return m.store.ExistsByURL(url)
}

// IsRunning 任务当前是否有执行
func (m *Manager) IsRunning(id uint) bool {
	return m.coordinator.IsRunning(id)
}

// Status 运行状态概览
func (m *Manager) Status() (*StatusSummary, error) {
	counts, err := m.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	return &StatusSummary{
		Active:   m.coordinator.ActiveCount(),
		Running:  m.coordinator.Active(),
		ByStatus: counts,
	}, nil
}

// RefreshActive 为未结束的任务挂上界面句柄，并启动等待中的任务。
// 关闭自动恢复时 Downloading 任务不挂句柄，随后的检查会把它们降级为暂停。
func (m *Manager) RefreshActive() ([]model.DownloadTask, error) {
	tasks, err := m.store.List(model.ActiveStatuses...)
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		switch task.Status {
		case model.TaskStatusPending:
			m.coordinator.Start(task.ID, task.URL, m.attach(task.ID))
		case model.TaskStatusDownloading:
			if m.autoResume {
				m.attach(task.ID)
			}
		default:
			m.attach(task.ID)
		}
	}
	return tasks, nil
}

// Sweep 执行一次僵尸任务检查
func (m *Manager) Sweep() (SweepReport, error) {
	return m.recovery.Sweep()
}

// Resume 进程启动或客户端重新连接时调用：刷新活动列表后检查僵尸任务
func (m *Manager) Resume() (SweepReport, error) {
	if _, err := m.RefreshActive(); err != nil {
		return SweepReport{}, fmt.Errorf("刷新活动任务失败: %w", err)
	}
	return m.Sweep()
}

func (m *Manager) attach(id uint) Callbacks {
	if m.views == nil {
		return Callbacks{}
	}
	return m.views.Attach(id)
}
