package hub

import (
	"context"
	"strconv"
	"sync"
	"time"

	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/service"

	"github.com/patrickmn/go-cache"
)

const (
	queueSize      = 256
	subscriberSize = 64
	liveExpiration = 10 * time.Minute
)

// EventType 推送给客户端的事件类型
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventPaused   EventType = "paused"
)

// Event 单个任务的界面事件
type Event struct {
	Type     EventType        `json:"type"`
	TaskID   uint             `json:"task_id"`
	Status   model.TaskStatus `json:"status"`
	Progress int              `json:"progress,omitempty"`
	Speed    string           `json:"speed,omitempty"`
	FilePath string           `json:"file_path,omitempty"`
	Title    string           `json:"title,omitempty"`
	Message  string           `json:"message,omitempty"`
	Time     time.Time        `json:"time"`
}

// LiveProgress 运行中任务最近一次的进度
type LiveProgress struct {
	Percent   int       `json:"percent"`
	Speed     string    `json:"speed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hub 协调循环：在单个 goroutine 中按顺序执行投递过来的回调，
// 维护任务的界面句柄，并把事件分发给所有订阅者
type Hub struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	handles     map[uint]struct{}
	subscribers map[chan Event]struct{}

	live   *cache.Cache
	logger *logger.Logger
}

// New 创建 Hub，需要调用 Run 启动循环
func New(log *logger.Logger) *Hub {
	return &Hub{
		queue:       make(chan func(), queueSize),
		done:        make(chan struct{}),
		handles:     make(map[uint]struct{}),
		subscribers: make(map[chan Event]struct{}),
		live:        cache.New(liveExpiration, 10*time.Minute),
		logger:      log,
	}
}

// Run 执行投递的函数直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case fn := <-h.queue:
			h.exec(fn)
		case <-ctx.Done():
			// 把已投递的回调执行完
			for {
				select {
				case fn := <-h.queue:
					h.exec(fn)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("界面回调发生 panic: %v", r)
		}
	}()
	fn()
}

// Post 投递到协调循环，循环结束后丢弃
func (h *Hub) Post(fn func()) {
	select {
	case h.queue <- fn:
	case <-h.done:
	}
}

// Attach 为任务登记界面句柄并返回对应的回调，重复调用是安全的
func (h *Hub) Attach(id uint) service.Callbacks {
	h.mu.Lock()
	h.handles[id] = struct{}{}
	h.mu.Unlock()
	return h.callbacks(id)
}

// Lookup 任务有句柄时返回其回调
func (h *Hub) Lookup(id uint) (service.Callbacks, bool) {
	h.mu.Lock()
	_, ok := h.handles[id]
	h.mu.Unlock()
	if !ok {
		return service.Callbacks{}, false
	}
	return h.callbacks(id), true
}

// Detach 移除任务句柄
func (h *Hub) Detach(id uint) {
	h.mu.Lock()
	delete(h.handles, id)
	h.mu.Unlock()
	h.live.Delete(liveKey(id))
}

// Handles 当前登记的任务数量
func (h *Hub) Handles() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handles)
}

func (h *Hub) callbacks(id uint) service.Callbacks {
	return service.Callbacks{
		OnProgress: func(percent int, speed string) {
			h.live.SetDefault(liveKey(id), LiveProgress{Percent: percent, Speed: speed, UpdatedAt: time.Now()})
			h.publish(Event{Type: EventProgress, TaskID: id, Status: model.TaskStatusDownloading, Progress: percent, Speed: speed})
		},
		OnComplete: func(filePath, title string) {
			// 完成的任务转入历史，不再需要句柄
			h.Detach(id)
			h.publish(Event{Type: EventComplete, TaskID: id, Status: model.TaskStatusCompleted, Progress: 100, FilePath: filePath, Title: title})
		},
		OnError: func(message string) {
			h.live.Delete(liveKey(id))
			h.publish(Event{Type: EventError, TaskID: id, Status: model.TaskStatusError, Message: message})
		},
		OnPaused: func() {
			h.live.Delete(liveKey(id))
			h.publish(Event{Type: EventPaused, TaskID: id, Status: model.TaskStatusPaused})
		},
	}
}

// Live 返回运行中任务最近的进度和速度
func (h *Hub) Live(id uint) (LiveProgress, bool) {
	v, ok := h.live.Get(liveKey(id))
	if !ok {
		return LiveProgress{}, false
	}
	return v.(LiveProgress), true
}

// Subscribe 订阅事件，返回的函数用于取消订阅
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberSize)

	h.mu.Lock()
	select {
	case <-h.done:
		close(ch)
	default:
		h.subscribers[ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// publish 非阻塞发送，慢的订阅者会丢事件
func (h *Hub) publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Debugf("订阅者缓冲已满，丢弃任务 %d 的 %s 事件", event.TaskID, event.Type)
		}
	}
}

// stop 先标记结束再关闭订阅，之后的 Subscribe 直接得到已关闭的通道
func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func liveKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
