package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"media-grab/app/model"

	"resty.dev/v3"
)

// ErrUnreachable 服务器没有运行或无法连接
var ErrUnreachable = errors.New("无法连接服务器")

// apiResponse 与服务端统一响应结构一致
type apiResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type loginData struct {
	Token    string `json:"token"`
	ExpireAt int64  `json:"expire_at"`
}

// Client 命令行访问运行中服务器的 API 客户端
type Client struct {
	client *resty.Client
}

// New 创建客户端，baseURL 形如 http://127.0.0.1:5000
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	c.SetHeader("User-Agent", "media-grab-cli")
	return &Client{client: c}
}

// Login 登录并在后续请求中携带令牌
func (c *Client) Login(ctx context.Context, username, password string) error {
	var result apiResponse[loginData]
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&result).
		Post("/api/auth/login")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("登录失败(%d): %s", resp.StatusCode(), errorMessage(resp))
	}
	if result.Data.Token == "" {
		return errors.New("登录失败: 服务器未返回令牌")
	}

	c.client.SetAuthToken(result.Data.Token)
	return nil
}

// Submit 通过服务器提交下载，服务器会立即开始下载
func (c *Client) Submit(ctx context.Context, url string) (*model.DownloadTask, error) {
	var result apiResponse[model.DownloadTask]
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"url": url}).
		SetResult(&result).
		Post("/api/tasks")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("提交失败(%d): %s", resp.StatusCode(), errorMessage(resp))
	}
	return &result.Data, nil
}

// errorMessage 取出错误响应中的 message，解析失败时返回原始内容
func errorMessage(resp *resty.Response) string {
	var body apiResponse[json.RawMessage]
	if err := json.Unmarshal([]byte(resp.String()), &body); err != nil || body.Message == "" {
		return resp.String()
	}
	return body.Message
}

// Close 释放连接
func (c *Client) Close() error {
	return c.client.Close()
}
