package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"media-grab/app/auth"
	"media-grab/app/config"
	"media-grab/app/downloader"
	"media-grab/app/handler"
	"media-grab/app/hub"
	"media-grab/app/logger"
	"media-grab/app/middleware"
	"media-grab/app/notify"
	"media-grab/app/power"
	"media-grab/app/service"
	"media-grab/app/store"
	"media-grab/app/thumbnail"
	"media-grab/app/watcher"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Server 表示 HTTP 服务器以及它驱动的下载组件
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	hub         *hub.Hub
	hubCancel   context.CancelFunc
	hubDone     chan struct{}
	coordinator *service.Coordinator
	inhibitor   *power.Inhibitor
	manager     *service.Manager
	scheduler   *service.RecoveryScheduler
	watcher     *watcher.TorrentWatcher
	notifier    *notify.Webhook
	jwt         *auth.JWTService
	credentials *auth.Credentials
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger, db *gorm.DB) (*Server, error) {
	credentials, err := auth.NewCredentials(cfg.Server.Username, cfg.Server.Password)
	if err != nil {
		return nil, err
	}

	h := hub.New(log.Named("hub"))
	st := store.NewTaskStore(db)

	dl := cfg.Download
	executor := service.NewExecutor(st,
		downloader.NewAria2(dl.Aria2cPath, dl.StopGrace, log.Named("aria2")),
		downloader.NewYtDlp(dl.YtDlpPath, dl.WriteThumbnail, log.Named("yt-dlp")),
		h,
		service.ExecutorOptions{
			OutputDir:        dl.Dir,
			ProgressStep:     dl.ProgressStep,
			ProgressInterval: dl.ProgressInterval,
		},
		log.Named("executor"),
	)
	notifier := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, log.Named("notify"))
	executor.SetNotifier(notifier)
	if dl.WriteThumbnail {
		executor.SetThumbnailer(thumbnail.New(dl.ThumbnailWidth))
	}

	inhibitor := power.NewInhibitor(cfg.Power.Inhibit, cfg.Power.InhibitorPath, log.Named("power"))
	coordinator := service.NewCoordinator(executor, inhibitor, log.Named("coordinator"))
	manager := service.NewManager(st, coordinator, h, dl.Dir, cfg.Recovery.AutoResume, log.Named("manager"))
	manager.SetStopTimeout(dl.StopGrace + 5*time.Second)

	scheduler, err := service.NewRecoveryScheduler(cfg.Recovery.Schedule, manager, log.Named("scheduler"))
	if err != nil {
		return nil, err
	}

	var tw *watcher.TorrentWatcher
	if cfg.Watch.Enabled {
		if tw, err = watcher.New(cfg.Watch.Dir, manager, log.Named("watcher")); err != nil {
			return nil, err
		}
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:      cfg,
		Logger:      log,
		hub:         h,
		hubDone:     make(chan struct{}),
		coordinator: coordinator,
		inhibitor:   inhibitor,
		manager:     manager,
		scheduler:   scheduler,
		watcher:     tw,
		notifier:    notifier,
		jwt:         auth.NewJWTService(cfg.JWT),
		credentials: credentials,
	}

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Start 启动协调循环、恢复中断的任务，然后开始监听
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	go func() {
		defer close(s.hubDone)
		s.hub.Run(ctx)
	}()

	report, err := s.manager.Resume()
	if err != nil {
		s.Logger.Errorf("启动时恢复检查失败: %v", err)
	} else {
		s.Logger.Infof("启动恢复检查: 检查 %d, 重启 %d, 暂停 %d", report.Checked, report.Restarted, report.Demoted)
	}

	s.scheduler.Start()

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("启动种子监控失败: %w", err)
		}
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 按依赖顺序关闭：先停止新任务来源，再停止下载，最后关闭推送和 HTTP。
// 被中断的下载保持 Downloading，下次启动时由恢复检查接手。
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.Logger.Errorf("停止种子监控失败: %v", err)
		}
	}
	s.scheduler.Stop(ctx)

	if err := s.coordinator.Shutdown(ctx); err != nil {
		s.Logger.Errorf("停止下载失败: %v", err)
	}
	s.inhibitor.Close()

	// 结束协调循环，事件流随之关闭
	if s.hubCancel != nil {
		s.hubCancel()
		select {
		case <-s.hubDone:
		case <-ctx.Done():
		}
	}

	if err := s.notifier.Close(); err != nil {
		s.Logger.Errorf("关闭通知失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	// 创建处理器实例
	authHandler := handler.NewAuthHandler(s.credentials, s.jwt, s.Logger.Named("auth"))
	taskHandler := handler.NewTaskHandler(s.manager, s.hub, s.Logger.Named("api"))
	systemHandler := handler.NewSystemHandler(s.manager)

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.jwt))
	{
		tasks := protected.Group("/tasks")
		{
			tasks.POST("", taskHandler.Submit)
			tasks.GET("", taskHandler.List)
			tasks.GET("/:id", taskHandler.Get)
			tasks.POST("/:id/start", taskHandler.Start)
			tasks.POST("/:id/stop", taskHandler.Stop)
			tasks.DELETE("/:id", taskHandler.Delete)
		}

		protected.GET("/events", taskHandler.Events)
		protected.GET("/status", systemHandler.Status)
		protected.DELETE("/history", systemHandler.ClearHistory)
		protected.POST("/recovery/sweep", systemHandler.Sweep)
	}
}
