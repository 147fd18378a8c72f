package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/service"

	"resty.dev/v3"
)

// Payload 发送给 webhook 的请求体
type Payload struct {
	Event string            `json:"event"`
	Task  service.TaskEvent `json:"task"`
	Time  time.Time         `json:"time"`
}

// Webhook 任务结束时以 JSON POST 通知外部地址，未配置地址时只写日志
type Webhook struct {
	url    string
	client *resty.Client
	logger *logger.Logger

	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewWebhook 创建通知器
func NewWebhook(url string, timeout time.Duration, log *logger.Logger) *Webhook {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.SetHeader("User-Agent", "media-grab")

	return &Webhook{
		url:    url,
		client: client,
		logger: log,
	}
}

// Notify 异步发送，不阻塞调用方
func (w *Webhook) Notify(ctx context.Context, event service.TaskEvent) {
	name := eventName(event.Status)
	w.logger.Infof("任务通知: %s, 任务 %d %s", name, event.TaskID, event.Title)
	if w.url == "" {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	payload := Payload{Event: name, Task: event, Time: time.Now()}
	go func() {
		defer w.wg.Done()
		if err := w.send(context.WithoutCancel(ctx), payload); err != nil {
			w.logger.Warnf("发送任务 %d 通知失败: %v", event.TaskID, err)
		}
	}()
}

func (w *Webhook) send(ctx context.Context, payload Payload) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("请求 webhook 失败: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook 返回状态码 %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Close 等待未完成的通知发送完毕
func (w *Webhook) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	return w.client.Close()
}

func eventName(status model.TaskStatus) string {
	switch status {
	case model.TaskStatusCompleted:
		return "task.completed"
	case model.TaskStatusPaused:
		return "task.paused"
	case model.TaskStatusError:
		return "task.failed"
	default:
		return "task." + string(status)
	}
}
