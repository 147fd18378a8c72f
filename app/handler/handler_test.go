package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-grab/app/auth"
	"media-grab/app/config"
	"media-grab/app/database"
	"media-grab/app/hub"
	"media-grab/app/logger"
	"media-grab/app/middleware"
	"media-grab/app/model"
	"media-grab/app/service"
	"media-grab/app/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleRunner 一直运行直到被取消
type idleRunner struct{}

func (idleRunner) Run(ctx context.Context, _ uint, _ string, _ service.Callbacks) service.Outcome {
	<-ctx.Done()
	return service.OutcomePaused
}

type fixture struct {
	router      *gin.Engine
	store       *store.TaskStore
	hub         *hub.Hub
	coordinator *service.Coordinator
	token       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	st := store.NewTaskStore(db)

	coordinator := service.NewCoordinator(idleRunner{}, nil, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coordinator.Shutdown(ctx)
	})
	h := hub.New(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	t.Cleanup(stopHub)
	go h.Run(hubCtx)
	manager := service.NewManager(st, coordinator, h, t.TempDir(), true, log)

	jwtService := auth.NewJWTService(config.JWTConfig{Secret: "test", ExpireTime: 1, Issuer: "media-grab"})
	creds, err := auth.NewCredentials("admin", "secret")
	require.NoError(t, err)

	authHandler := NewAuthHandler(creds, jwtService, log)
	taskHandler := NewTaskHandler(manager, h, log)
	systemHandler := NewSystemHandler(manager)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/auth/login", authHandler.Login)
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(jwtService))
	protected.POST("/tasks", taskHandler.Submit)
	protected.GET("/tasks", taskHandler.List)
	protected.GET("/tasks/:id", taskHandler.Get)
	protected.POST("/tasks/:id/start", taskHandler.Start)
	protected.POST("/tasks/:id/stop", taskHandler.Stop)
	protected.DELETE("/tasks/:id", taskHandler.Delete)
	protected.DELETE("/history", systemHandler.ClearHistory)
	protected.GET("/status", systemHandler.Status)
	protected.GET("/events", taskHandler.Events)

	token, err := jwtService.GenerateToken("admin")
	require.NoError(t, err)
	return &fixture{router: router, store: st, hub: h, coordinator: coordinator, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, ApiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp ApiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestSubmitRejectsInvalidURL(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/api/tasks", gin.H{"url": "ftp://example.com/file"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tasks, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSubmitCreatesTask(t *testing.T) {
	f := newFixture(t)

	w, resp := f.do(t, http.MethodPost, "/api/tasks", gin.H{"url": "https://example.com/video"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, resp.Code)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "https://example.com/video", data["url"])
	assert.Equal(t, true, data["running"])
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodGet, "/api/tasks?status=Sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/tasks?status=paused&status=Error", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetMissingTask(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodGet, "/api/tasks/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/tasks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartCompletedTaskConflicts(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.Create("https://example.com/v")
	require.NoError(t, err)
	full := 100
	_, err = f.store.UpdateStatus(id, model.TaskStatusCompleted, &full)
	require.NoError(t, err)

	w, _ := f.do(t, http.MethodPost, "/api/tasks/1/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Create("https://example.com/v")
	require.NoError(t, err)

	w, _ := f.do(t, http.MethodDelete, "/api/tasks/1?delete_file=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/tasks/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	_, resp := f.do(t, http.MethodPost, "/api/tasks", gin.H{"url": "https://example.com/video"})
	require.Equal(t, 0, resp.Code)

	w, resp := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["active"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	f.token = ""

	w, _ := f.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.token = "garbage"
	w, _ = f.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.token = ""

	w, _ := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": "admin", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)

	f.token = token
	w, _ = f.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// streamLines 在后台读取事件流，按行送出
func streamLines(t *testing.T, ctx context.Context, url string) <-chan string {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func TestEventsConnectSweepsAndStreamsProgress(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.Create("https://example.com/v")
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(id, model.TaskStatusDownloading, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := streamLines(t, ctx, srv.URL+"/api/events?token="+f.token)

	// 连接后的恢复检查会重新启动没有执行的 Downloading 任务
	require.Eventually(t, func() bool { return f.coordinator.IsRunning(id) }, 5*time.Second, 10*time.Millisecond)

	cb, ok := f.hub.Lookup(id)
	require.True(t, ok)
	f.hub.Post(func() { cb.OnProgress(42, "1.0 MB/s") })

	timeout := time.After(5 * time.Second)
	var event string
	for {
		select {
		case line, open := <-lines:
			require.True(t, open, "事件流提前结束")
			if strings.HasPrefix(line, "event:") {
				event = strings.TrimPrefix(line, "event:")
				continue
			}
			if !strings.HasPrefix(line, "data:") || event != string(hub.EventProgress) {
				continue
			}
			var got hub.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &got))
			assert.Equal(t, id, got.TaskID)
			assert.Equal(t, 42, got.Progress)
			assert.Equal(t, "1.0 MB/s", got.Speed)
			return
		case <-timeout:
			t.Fatal("没有收到进度事件")
		}
	}
}

func TestEventsRequireToken(t *testing.T) {
	f := newFixture(t)
	f.token = ""

	w, _ := f.do(t, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
