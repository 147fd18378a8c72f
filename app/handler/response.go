package handler

import (
	"errors"
	"net/http"
	"strconv"

	"media-grab/app/downloader"
	"media-grab/app/service"
	"media-grab/app/store"

	"github.com/gin-gonic/gin"
)

// ApiResponse 统一响应结构
type ApiResponse struct {
	Code    int    `json:"code"`    // 状态码，0表示成功
	Message string `json:"message"` // 响应消息
	Data    any    `json:"data"`    // 响应数据
}

// 创建成功响应
func success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应
func fail(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    statusCode,
		Message: message,
		Data:    nil,
	})
}

// failWith 按错误类型选择状态码
func failWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, downloader.ErrInvalidURL):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTaskNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTaskCompleted), errors.Is(err, service.ErrTaskStopping):
		fail(c, http.StatusConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "无效的任务ID")
		return 0, false
	}
	return uint(id), true
}
