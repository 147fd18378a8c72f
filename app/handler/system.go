package handler

import (
	"net/http"

	"media-grab/app/service"

	"github.com/gin-gonic/gin"
)

// SystemHandler 状态、历史清理和恢复检查
type SystemHandler struct {
	manager *service.Manager
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(manager *service.Manager) *SystemHandler {
	return &SystemHandler{manager: manager}
}

// Status 运行中的任务数量和各状态任务数
func (h *SystemHandler) Status(c *gin.Context) {
	status, err := h.manager.Status()
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, status, "success")
}

// ClearHistory 清空已完成的下载记录
func (h *SystemHandler) ClearHistory(c *gin.Context) {
	n, err := h.manager.ClearHistory()
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"deleted": n}, "历史已清空")
}

// Sweep 手动触发僵尸任务检查
func (h *SystemHandler) Sweep(c *gin.Context) {
	report, err := h.manager.Resume()
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, http.StatusOK, report, "检查完成")
}
