package store

import (
	"errors"
	"fmt"
	"sync"

	"media-grab/app/model"

	"gorm.io/gorm"
)

var (
	// ErrStoreUnavailable 持久化层读写失败
	ErrStoreUnavailable = errors.New("任务存储不可用")
	// ErrTaskNotFound 任务不存在
	ErrTaskNotFound = errors.New("任务不存在")
)

// TaskStore 下载任务表的并发安全访问层
type TaskStore struct {
	db *gorm.DB
	mu sync.RWMutex
}

// NewTaskStore 创建任务存储
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Create 新建等待中的任务并返回ID
func (s *TaskStore) Create(url string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &model.DownloadTask{
		URL:      url,
		Status:   model.TaskStatusPending,
		Progress: 0,
	}
	if err := s.db.Create(task).Error; err != nil {
		return 0, unavailable("创建任务", err)
	}
	return task.ID, nil
}

// UpdateStatus 更新状态，progress 为 nil 时保持原进度。
// 任务不存在时返回 false 且不报错，调用方应放弃后续更新。
func (s *TaskStore) UpdateStatus(id uint, status model.TaskStatus, progress *int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := map[string]interface{}{"status": status}
	if progress != nil {
		updates["progress"] = clampProgress(*progress)
	}
	if status == model.TaskStatusDownloading {
		updates["last_error"] = ""
	}

	result := s.db.Model(&model.DownloadTask{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return false, unavailable("更新任务状态", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// TransitionStatus 仅当当前状态为 from 时改为 to，返回是否发生了变更
func (s *TaskStore) TransitionStatus(id uint, from, to model.TaskStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.Model(&model.DownloadTask{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, unavailable("切换任务状态", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetResult 记录文件路径和标题，与状态更新相互独立
func (s *TaskStore) SetResult(id uint, filePath, title string) (bool, error) {
	return s.updateColumns(id, "保存下载结果", map[string]interface{}{
		"file_path": filePath,
		"title":     title,
	})
}

// SetTitle 只更新标题
func (s *TaskStore) SetTitle(id uint, title string) (bool, error) {
	return s.updateColumns(id, "保存标题", map[string]interface{}{"title": title})
}

// SetThumbnail 记录缩略图路径
func (s *TaskStore) SetThumbnail(id uint, path string) (bool, error) {
	return s.updateColumns(id, "保存缩略图", map[string]interface{}{"thumbnail_path": path})
}

// SetError 记录最后一次错误信息
func (s *TaskStore) SetError(id uint, message string) (bool, error) {
	return s.updateColumns(id, "保存错误信息", map[string]interface{}{"last_error": message})
}

func (s *TaskStore) updateColumns(id uint, op string, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.Model(&model.DownloadTask{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return false, unavailable(op, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List 按创建时间倒序列出任务，不传状态时返回全部
func (s *TaskStore) List(statuses ...model.TaskStatus) ([]model.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := s.db.Model(&model.DownloadTask{})
	switch len(statuses) {
	case 0:
	case 1:
		query = query.Where("status = ?", statuses[0])
	default:
		query = query.Where("status IN ?", statuses)
	}

	var tasks []model.DownloadTask
	if err := query.Order("created_at DESC").Order("id DESC").Find(&tasks).Error; err != nil {
		return nil, unavailable("查询任务列表", err)
	}
	return tasks, nil
}

// Get 按ID获取任务
func (s *TaskStore) Get(id uint) (*model.DownloadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var task model.DownloadTask
	if err := s.db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, unavailable("查询任务", err)
	}
	return &task, nil
}

// ExistsByURL 是否已有相同链接的任务
func (s *TaskStore) ExistsByURL(url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.Model(&model.DownloadTask{}).Where("url = ?", url).Count(&count).Error; err != nil {
		return false, unavailable("查询任务", err)
	}
	return count > 0, nil
}

// Delete 删除任务记录，不删除下载的文件
func (s *TaskStore) Delete(id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.Delete(&model.DownloadTask{}, id)
	if result.Error != nil {
		return false, unavailable("删除任务", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteByStatus 删除指定状态的全部任务，返回删除数量
func (s *TaskStore) DeleteByStatus(status model.TaskStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.Where("status = ?", status).Delete(&model.DownloadTask{})
	if result.Error != nil {
		return 0, unavailable("批量删除任务", result.Error)
	}
	return result.RowsAffected, nil
}

// CountByStatus 统计各状态的任务数量
func (s *TaskStore) CountByStatus() (map[model.TaskStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []struct {
		Status model.TaskStatus
		Count  int64
	}
	if err := s.db.Model(&model.DownloadTask{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, unavailable("统计任务", err)
	}

	counts := make(map[model.TaskStatus]int64, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
