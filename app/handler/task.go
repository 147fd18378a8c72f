package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"media-grab/app/hub"
	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/service"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 30 * time.Second

// TaskHandler 下载任务相关接口
type TaskHandler struct {
	manager *service.Manager
	hub     *hub.Hub
	logger  *logger.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(manager *service.Manager, h *hub.Hub, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		manager: manager,
		hub:     h,
		logger:  log,
	}
}

// SubmitRequest 提交下载请求
type SubmitRequest struct {
	URL string `json:"url" binding:"required"`
}

// TaskView 返回给客户端的任务，运行中的任务附带实时速度
type TaskView struct {
	model.DownloadTask
	Running bool   `json:"running"`
	Speed   string `json:"speed,omitempty"`
	Age     string `json:"age"`
}

func (h *TaskHandler) view(task model.DownloadTask) TaskView {
	v := TaskView{
		DownloadTask: task,
		Running:      h.manager.IsRunning(task.ID),
		Age:          humanize.Time(task.CreatedAt),
	}
	if live, ok := h.hub.Live(task.ID); ok && v.Running {
		v.Speed = live.Speed
		if live.Percent > v.Progress {
			v.Progress = live.Percent
		}
	}
	return v
}

// Submit 提交新的下载
func (h *TaskHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	task, err := h.manager.Submit(req.URL)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusCreated, h.view(*task), "任务已创建")
}

// List 按状态列出任务
func (h *TaskHandler) List(c *gin.Context) {
	var statuses []model.TaskStatus
	for _, raw := range c.QueryArray("status") {
		st, ok := model.ParseTaskStatus(raw)
		if !ok {
			fail(c, http.StatusBadRequest, "未知的任务状态: "+raw)
			return
		}
		statuses = append(statuses, st)
	}

	tasks, err := h.manager.List(statuses...)
	if err != nil {
		failWith(c, err)
		return
	}

	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, h.view(task))
	}
	success(c, http.StatusOK, gin.H{
		"list":  views,
		"total": len(views),
	}, "success")
}

// Get 获取单个任务
func (h *TaskHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := h.manager.Get(id)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, h.view(*task), "success")
}

// Start 开始或继续下载
func (h *TaskHandler) Start(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := h.manager.Start(id)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, h.view(*task), "任务已启动")
}

// Stop 停止下载，任务变为暂停
func (h *TaskHandler) Stop(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := h.manager.Stop(id)
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, h.view(*task), "已请求停止")
}

// Delete 删除任务，delete_file=true 时同时删除文件
func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleteFile, _ := strconv.ParseBool(c.DefaultQuery("delete_file", "false"))
	if err := h.manager.Delete(id, deleteFile); err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"id": id, "delete_file": deleteFile}, "任务已删除")
}

// Events 以 SSE 推送任务事件。客户端连上时执行一次恢复检查。
func (h *TaskHandler) Events(c *gin.Context) {
	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	go func() {
		if _, err := h.manager.Resume(); err != nil {
			h.logger.Errorf("客户端连接时恢复检查失败: %v", err)
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
