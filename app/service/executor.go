package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"media-grab/app/downloader"
	"media-grab/app/logger"
	"media-grab/app/model"
	"media-grab/app/store"
)

// Outcome 一次执行的结果
type Outcome int

const (
	OutcomeCompleted        Outcome = iota // 下载完成
	OutcomePaused                          // 被取消，任务暂停
	OutcomeFailed                          // 下载失败
	OutcomeToolMissing                     // 外部工具未安装
	OutcomeAbandoned                       // 任务记录已被删除
	OutcomeStoreUnavailable                // 数据库不可用
	OutcomeInterrupted                     // 进程退出时中断，保持 Downloading 等待恢复
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomePaused:
		return "paused"
	case OutcomeFailed:
		return "failed"
	case OutcomeToolMissing:
		return "tool_missing"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeStoreUnavailable:
		return "store_unavailable"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

var (
	errTaskDeleted  = errors.New("任务已被删除")
	errShuttingDown = errors.New("服务正在退出")
)

// ExecutorOptions 执行器参数
type ExecutorOptions struct {
	OutputDir        string
	ProgressStep     int
	ProgressInterval time.Duration
}

// Executor 在独立 goroutine 中完成单个任务的下载
type Executor struct {
	store       *store.TaskStore
	torrent     downloader.TorrentClient
	extractor   downloader.MediaExtractor
	dispatcher  Dispatcher
	notifier    Notifier
	thumbnailer Thumbnailer
	opts        ExecutorOptions
	logger      *logger.Logger
}

// NewExecutor 创建执行器
func NewExecutor(st *store.TaskStore, torrent downloader.TorrentClient, extractor downloader.MediaExtractor,
	dispatcher Dispatcher, opts ExecutorOptions, log *logger.Logger) *Executor {
	if dispatcher == nil {
		dispatcher = InlineDispatcher
	}
	return &Executor{
		store:      st,
		torrent:    torrent,
		extractor:  extractor,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     log,
	}
}

// SetNotifier 设置任务结束通知
func (e *Executor) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetThumbnailer 设置缩略图生成器
func (e *Executor) SetThumbnailer(t Thumbnailer) {
	e.thumbnailer = t
}

// Run 执行下载直到结束。所有失败都在这里转换成状态和回调，不向上抛出。
func (e *Executor) Run(ctx context.Context, id uint, url string, cb Callbacks) (outcome Outcome) {
	log := e.logger.WithTask(id)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("下载任务发生 panic: %v", r)
			outcome = e.fail(id, url, cb, fmt.Errorf("%w: %v", downloader.ErrRetrievalFailed, r), log)
		}
	}()

	task, err := e.store.Get(id)
	if errors.Is(err, store.ErrTaskNotFound) {
		log.Warnf("任务不存在，放弃执行")
		return OutcomeAbandoned
	}
	if err != nil {
		log.Errorf("读取任务失败: %v", err)
		return OutcomeStoreUnavailable
	}

	// 确保下载目录存在
	if err := os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		log.Errorf("创建下载目录失败: %v", err)
		return e.fail(id, url, cb, fmt.Errorf("%w: 创建下载目录失败: %v", downloader.ErrRetrievalFailed, err), log)
	}

	ok, err := e.store.UpdateStatus(id, model.TaskStatusDownloading, nil)
	if err != nil {
		log.Errorf("更新任务状态失败: %v", err)
		return OutcomeStoreUnavailable
	}
	if !ok {
		return OutcomeAbandoned
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	kind := downloader.Classify(url)
	log.Infof("开始下载: 方式=%s, 链接=%s", kind, url)
	startTime := time.Now()

	tracker := newProgressTracker(task.Progress, e.opts.ProgressStep, e.opts.ProgressInterval)
	titleSaved := task.Title != ""
	onProgress := func(p downloader.Progress) {
		// 每个进度点都是取消检查点
		if runCtx.Err() != nil {
			return
		}
		if p.Title != "" && !titleSaved {
			titleSaved = true
			if _, err := e.store.SetTitle(id, p.Title); err != nil {
				log.Warnf("保存标题失败: %v", err)
			}
		}

		persist, emit, value := tracker.observe(int(p.Percent))
		if persist {
			ok, err := e.store.UpdateStatus(id, model.TaskStatusDownloading, &value)
			if err != nil {
				log.Warnf("保存进度失败: %v", err)
			} else if !ok {
				cancel(errTaskDeleted)
				return
			}
		}
		if emit && cb.OnProgress != nil {
			speed := p.Speed
			e.dispatcher.Post(func() { cb.OnProgress(value, speed) })
		}
	}

	var result *downloader.Result
	switch kind {
	case downloader.KindTorrent:
		result, err = e.torrent.Download(runCtx, url, e.opts.OutputDir, onProgress)
	default:
		result, err = e.extractor.Extract(runCtx, url, e.opts.OutputDir, onProgress)
	}

	switch {
	case err == nil:
		log.Infof("下载完成，耗时: %.2fs", time.Since(startTime).Seconds())
		return e.complete(id, url, result, cb, log)
	case errors.Is(context.Cause(runCtx), errTaskDeleted):
		log.Infof("任务在下载过程中被删除，停止下载")
		return OutcomeAbandoned
	case errors.Is(context.Cause(runCtx), errShuttingDown):
		// 不写暂停，记录保持 Downloading，下次启动由恢复检查接手
		log.Infof("服务退出，下载中断")
		return OutcomeInterrupted
	case runCtx.Err() != nil:
		return e.pause(id, url, cb, log)
	default:
		return e.fail(id, url, cb, err, log)
	}
}

// complete 先写结果再写状态，保证 Completed 时一定有文件路径
func (e *Executor) complete(id uint, url string, result *downloader.Result, cb Callbacks, log *logger.Logger) Outcome {
	if result == nil || result.FilePath == "" {
		return e.fail(id, url, cb, fmt.Errorf("%w: 下载工具未报告文件路径", downloader.ErrRetrievalFailed), log)
	}
	filePath := result.FilePath
	title := result.Title
	if title == "" {
		title = downloader.TitleFromPath(filePath)
	}
	if title == "" {
		title = url
	}

	ok, err := e.store.SetResult(id, filePath, title)
	if err != nil {
		log.Errorf("保存下载结果失败: %v", err)
		return OutcomeStoreUnavailable
	}
	if !ok {
		return OutcomeAbandoned
	}
	full := 100
	if ok, err = e.store.UpdateStatus(id, model.TaskStatusCompleted, &full); err != nil {
		log.Errorf("更新完成状态失败: %v", err)
		return OutcomeStoreUnavailable
	} else if !ok {
		return OutcomeAbandoned
	}

	if e.thumbnailer != nil {
		thumb, err := e.thumbnailer.Generate(filePath)
		if err != nil {
			log.Debugf("缩略图: %v", err)
		}
		if thumb != "" {
			if _, err := e.store.SetThumbnail(id, thumb); err != nil {
				log.Warnf("保存缩略图路径失败: %v", err)
			}
		}
	}

	if cb.OnComplete != nil {
		e.dispatcher.Post(func() { cb.OnComplete(filePath, title) })
	}
	e.notify(TaskEvent{TaskID: id, URL: url, Title: title, Status: model.TaskStatusCompleted, FilePath: filePath})
	log.Infof("任务完成: %s -> %s", title, filePath)
	return OutcomeCompleted
}

// pause 取消是预期结果，不是错误
func (e *Executor) pause(id uint, url string, cb Callbacks, log *logger.Logger) Outcome {
	ok, err := e.store.UpdateStatus(id, model.TaskStatusPaused, nil)
	if err != nil {
		log.Errorf("更新暂停状态失败: %v", err)
		return OutcomeStoreUnavailable
	}
	if !ok {
		return OutcomeAbandoned
	}

	if cb.OnPaused != nil {
		e.dispatcher.Post(cb.OnPaused)
	}
	e.notify(TaskEvent{TaskID: id, URL: url, Status: model.TaskStatusPaused})
	log.Infof("任务已暂停")
	return OutcomePaused
}

// fail 标记为失败，不自动重试
func (e *Executor) fail(id uint, url string, cb Callbacks, cause error, log *logger.Logger) Outcome {
	outcome := OutcomeFailed
	message := cause.Error()
	var missing *downloader.ToolMissingError
	if errors.As(cause, &missing) {
		outcome = OutcomeToolMissing
		message = missing.Error()
		log.Errorf("外部工具缺失: %s", missing.Tool)
	} else {
		log.Errorf("下载失败: %v", cause)
	}

	ok, err := e.store.UpdateStatus(id, model.TaskStatusError, nil)
	if err != nil {
		log.Errorf("更新失败状态失败: %v", err)
		return OutcomeStoreUnavailable
	}
	if !ok {
		return OutcomeAbandoned
	}
	if _, err := e.store.SetError(id, message); err != nil {
		log.Warnf("保存错误信息失败: %v", err)
	}

	if cb.OnError != nil {
		e.dispatcher.Post(func() { cb.OnError(message) })
	}
	e.notify(TaskEvent{TaskID: id, URL: url, Status: model.TaskStatusError, Message: message})
	return outcome
}

func (e *Executor) notify(event TaskEvent) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(context.Background(), event)
}
