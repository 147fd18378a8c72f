package service

import (
	"context"

	"media-grab/app/model"
)

// Callbacks 单个任务的界面回调，全部通过 Dispatcher 投递到协调循环上执行
type Callbacks struct {
	OnProgress func(percent int, speed string)
	OnComplete func(filePath, title string)
	OnError    func(message string)
	OnPaused   func()
}

// Dispatcher 把函数投递到拥有界面状态的协调循环
type Dispatcher interface {
	Post(fn func())
}

// DispatcherFunc 允许用普通函数实现 Dispatcher
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Post(fn func()) { f(fn) }

// InlineDispatcher 在调用方 goroutine 中直接执行，未提供 hub 时使用
var InlineDispatcher Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// PowerHook 有下载进行时保持设备唤醒
type PowerHook interface {
	Acquire()
	Release()
}

// TaskEvent 任务结束时发出的通知内容
type TaskEvent struct {
	TaskID   uint             `json:"task_id"`
	URL      string           `json:"url"`
	Title    string           `json:"title"`
	Status   model.TaskStatus `json:"status"`
	FilePath string           `json:"file_path,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Notifier 接收任务完成、失败和暂停通知
type Notifier interface {
	Notify(ctx context.Context, event TaskEvent)
}

// Thumbnailer 为下载完成的媒体生成缩略图
type Thumbnailer interface {
	Generate(mediaPath string) (string, error)
}
