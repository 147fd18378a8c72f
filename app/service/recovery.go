package service

import (
	"sync"

	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/store"
)

// RecoveryAction 对一条存储状态为 Downloading 的任务的处理方式
type RecoveryAction int

const (
	ActionConsistent RecoveryAction = iota // 确实在运行
	ActionRestart                          // 僵尸任务，有界面句柄，重新启动
	ActionDemote                           // 僵尸任务，无界面句柄，降级为暂停
)

func (a RecoveryAction) String() string {
	switch a {
	case ActionConsistent:
		return "consistent"
	case ActionRestart:
		return "restart"
	case ActionDemote:
		return "demote"
	default:
		return "unknown"
	}
}

// Decision 单个任务的恢复决定
type Decision struct {
	TaskID uint
	URL    string
	Action RecoveryAction
}

// Reconcile 对比存储视图和协调器视图，不产生任何副作用。
// 只处理 Downloading 的任务，其他状态原样跳过。
func Reconcile(stored []model.DownloadTask, isRunning func(uint) bool, hasHandle func(uint) bool) []Decision {
	decisions := make([]Decision, 0, len(stored))
	for _, task := range stored {
		if task.Status != model.TaskStatusDownloading {
			continue
		}
		d := Decision{TaskID: task.ID, URL: task.URL}
		switch {
		case isRunning(task.ID):
			d.Action = ActionConsistent
		case hasHandle != nil && hasHandle(task.ID):
			d.Action = ActionRestart
		default:
			d.Action = ActionDemote
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// HandleLookup 查找任务当前的界面句柄
type HandleLookup interface {
	Lookup(id uint) (Callbacks, bool)
}

// SweepReport 一次检查的统计
type SweepReport struct {
	Checked   int `json:"checked"`
	Restarted int `json:"restarted"`
	Demoted   int `json:"demoted"`
}

// Recovery 检测并处理僵尸任务
type Recovery struct {
	store       *store.TaskStore
	coordinator *Coordinator
	handles     HandleLookup
	logger      *logger.Logger

	// 同一时间只允许一次检查
	mu sync.Mutex
}

// NewRecovery 创建恢复检查，handles 可以为 nil
func NewRecovery(st *store.TaskStore, coordinator *Coordinator, handles HandleLookup, log *logger.Logger) *Recovery {
	return &Recovery{
		store:       st,
		coordinator: coordinator,
		handles:     handles,
		logger:      log,
	}
}

// Sweep 让所有 Downloading 任务要么真的在运行，要么被重启，要么降级为 Paused
func (r *Recovery) Sweep() (SweepReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report SweepReport
	stored, err := r.store.List(model.TaskStatusDownloading)
	if err != nil {
		return report, err
	}

	callbacks := make(map[uint]Callbacks)
	hasHandle := func(id uint) bool {
		if r.handles == nil {
			return false
		}
		cb, ok := r.handles.Lookup(id)
		if ok {
			callbacks[id] = cb
		}
		return ok
	}

	decisions := Reconcile(stored, r.coordinator.IsRunning, hasHandle)
	report.Checked = len(decisions)

	for _, d := range decisions {
		switch d.Action {
		case ActionRestart:
			if r.coordinator.Start(d.TaskID, d.URL, callbacks[d.TaskID]) {
				report.Restarted++
				r.logger.Infof("僵尸任务 %d 已重新启动", d.TaskID)
			}
		case ActionDemote:
			ok, err := r.demote(d.TaskID)
			if err != nil {
				return report, err
			}
			if ok {
				report.Demoted++
			}
		}
	}

	if report.Restarted > 0 || report.Demoted > 0 {
		r.logger.Infof("恢复检查完成: 检查 %d, 重启 %d, 暂停 %d", report.Checked, report.Restarted, report.Demoted)
	}
	return report, nil
}

// demote 执行可能刚刚结束并写入了最终状态，只在状态仍为 Downloading 时降级
func (r *Recovery) demote(id uint) (bool, error) {
	if r.coordinator.IsRunning(id) {
		return false, nil
	}
	ok, err := r.store.TransitionStatus(id, model.TaskStatusDownloading, model.TaskStatusPaused)
	if err != nil {
		r.logger.Errorf("降级任务 %d 失败: %v", id, err)
		return false, err
	}
	if ok {
		r.logger.Warnf("任务 %d 未在运行，已降级为暂停", id)
	}
	return ok, nil
}
