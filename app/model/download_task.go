package model

import (
	"strings"
	"time"
)

// TaskStatus 下载任务状态
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "Pending"     // 等待中
	TaskStatusDownloading TaskStatus = "Downloading" // 下载中
	TaskStatusPaused      TaskStatus = "Paused"      // 已暂停，可恢复
	TaskStatusCompleted   TaskStatus = "Completed"   // 已完成
	TaskStatusError       TaskStatus = "Error"       // 失败，可手动重试
)

// AllStatuses 全部状态，按生命周期顺序
var AllStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusDownloading,
	TaskStatusPaused,
	TaskStatusCompleted,
	TaskStatusError,
}

// ActiveStatuses 出现在活动列表中的状态
var ActiveStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusDownloading,
	TaskStatusPaused,
	TaskStatusError,
}

// ParseTaskStatus 解析状态字符串，忽略大小写
func ParseTaskStatus(s string) (TaskStatus, bool) {
	for _, st := range AllStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal 是否为本次执行的终止状态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError || s == TaskStatusPaused
}

// CanStart 是否可以(重新)开始下载
func (s TaskStatus) CanStart() bool {
	return s != TaskStatusCompleted
}

// DownloadTask 下载任务模型
type DownloadTask struct {
	ID            uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	URL           string     `json:"url" gorm:"type:text;not null;comment:提交的链接"`
	Title         string     `json:"title" gorm:"size:500;comment:标题，解析后填充"`
	Status        TaskStatus `json:"status" gorm:"size:20;not null;default:Pending;index;comment:状态"`
	Progress      int        `json:"progress" gorm:"not null;default:0;comment:进度百分比"`
	FilePath      string     `json:"file_path" gorm:"type:text;comment:下载完成后的文件路径"`
	ThumbnailPath string     `json:"thumbnail_path" gorm:"type:text;comment:缩略图路径"`
	LastError     string     `json:"last_error" gorm:"type:text;comment:最后一次错误信息"`
	CreatedAt     time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (DownloadTask) TableName() string {
	return "download_tasks"
}

// DisplayTitle 标题未知时显示链接
func (t *DownloadTask) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.URL
}
