package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-grab/app/logger"
	"media-grab/app/model"

	"github.com/fsnotify/fsnotify"
)

// Submitter 接收监控目录中发现的种子文件
type Submitter interface {
	Submit(raw string) (*model.DownloadTask, error)
	Known(url string) (bool, error)
}

// TorrentWatcher 监控目录，新放入的 .torrent 文件自动提交下载
type TorrentWatcher struct {
	dir       string
	submitter Submitter
	watcher   *fsnotify.Watcher
	logger    *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	watching  bool
	mu        sync.Mutex

	// 初始扫描和事件处理可能同时发现同一个文件
	submitMu sync.Mutex

	readyInterval time.Duration
	readyTimeout  time.Duration
}

// New 创建种子监控器
func New(dir string, submitter Submitter, log *logger.Logger) (*TorrentWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("解析监控目录失败: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &TorrentWatcher{
		dir:           abs,
		submitter:     submitter,
		watcher:       w,
		logger:        log,
		stopCh:        make(chan struct{}),
		readyInterval: 500 * time.Millisecond,
		readyTimeout:  30 * time.Second,
	}, nil
}

// Start 开始监控，并提交目录中已有但未提交过的种子
func (tw *TorrentWatcher) Start() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.watching {
		return fmt.Errorf("监控目录 %s 已经在运行", tw.dir)
	}
	if err := os.MkdirAll(tw.dir, 0755); err != nil {
		return fmt.Errorf("创建监控目录失败: %w", err)
	}
	if err := tw.watcher.Add(tw.dir); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	tw.watching = true
	tw.wg.Add(2)
	go tw.watchLoop()
	go func() {
		defer tw.wg.Done()
		tw.processExisting()
	}()

	tw.logger.Infof("种子监控已启动: %s", tw.dir)
	return nil
}

// Stop 停止监控
func (tw *TorrentWatcher) Stop() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if !tw.watching {
		return tw.watcher.Close()
	}

	close(tw.stopCh)
	err := tw.watcher.Close()
	tw.wg.Wait()
	tw.watching = false

	tw.logger.Infof("种子监控已停止")
	return err
}

func (tw *TorrentWatcher) watchLoop() {
	defer tw.wg.Done()

	for {
		select {
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handleEvent(event)

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.logger.Errorf("种子监控错误: %v", err)

		case <-tw.stopCh:
			return
		}
	}
}

// handleEvent 只处理新建和移入的 .torrent 文件
func (tw *TorrentWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if !isTorrentFile(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	if err := tw.waitForFileReady(event.Name); err != nil {
		tw.logger.Warnf("等待种子文件就绪失败: %v", err)
		return
	}
	tw.submit(event.Name)
}

func (tw *TorrentWatcher) processExisting() {
	entries, err := os.ReadDir(tw.dir)
	if err != nil {
		tw.logger.Warnf("读取监控目录失败: %v", err)
		return
	}

	var submitted int
	for _, entry := range entries {
		if entry.IsDir() || !isTorrentFile(entry.Name()) {
			continue
		}
		if tw.submit(filepath.Join(tw.dir, entry.Name())) {
			submitted++
		}
	}
	if submitted > 0 {
		tw.logger.Infof("监控目录中已有 %d 个种子被提交", submitted)
	}
}

// submit 跳过已经提交过的文件
func (tw *TorrentWatcher) submit(path string) bool {
	tw.submitMu.Lock()
	defer tw.submitMu.Unlock()

	known, err := tw.submitter.Known(path)
	if err != nil {
		tw.logger.Errorf("查询种子是否已提交失败: %v", err)
		return false
	}
	if known {
		tw.logger.Debugf("种子已提交过，跳过: %s", path)
		return false
	}

	task, err := tw.submitter.Submit(path)
	if err != nil {
		tw.logger.Errorf("提交种子失败: %s, 错误: %v", path, err)
		return false
	}
	tw.logger.Infof("已提交种子 %s (任务 %d)", filepath.Base(path), task.ID)
	return true
}

// waitForFileReady 文件大小连续两次不变时认为写入完成
func (tw *TorrentWatcher) waitForFileReady(filePath string) error {
	timeout := time.After(tw.readyTimeout)
	var lastSize int64 = -1

	for {
		select {
		case <-timeout:
			return fmt.Errorf("等待文件就绪超时: %s", filePath)
		case <-tw.stopCh:
			return fmt.Errorf("监控已停止")
		case <-time.After(tw.readyInterval):
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("获取文件信息失败: %w", err)
			}

			currentSize := info.Size()
			if currentSize == lastSize && currentSize > 0 {
				return nil
			}
			lastSize = currentSize
		}
	}
}

func isTorrentFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".torrent")
}
