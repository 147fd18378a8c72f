package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"media-grab/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"message":"用户名或密码错误","data":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"message":"登录成功","data":{"token":"tok","expire_at":1}}`))
	})
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"message":"未登录","data":null}`))
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["url"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"不支持的链接","data":null}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    0,
			"message": "任务已创建",
			"data":    map[string]any{"id": 7, "url": req["url"], "status": "Pending", "running": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAndSubmit(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "admin", "secret"))

	task, err := c.Submit(ctx, "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, uint(7), task.ID)
	assert.Equal(t, "https://example.com/v", task.URL)
	assert.Equal(t, model.TaskStatusPending, task.Status)
}

func TestLoginRejected(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)
	defer c.Close()

	err := c.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "用户名或密码错误")
}

func TestSubmitRejectedByServer(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 5*time.Second)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "admin", "secret"))
	_, err := c.Submit(ctx, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	defer c.Close()

	err := c.Login(context.Background(), "admin", "secret")
	assert.ErrorIs(t, err, ErrUnreachable)
}
