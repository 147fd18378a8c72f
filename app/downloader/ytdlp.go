package downloader

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"media-grab/app/logger"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"
)

// OutputTemplate yt-dlp 文件名模板
const OutputTemplate = "%(title)s.%(ext)s"

// YtDlp 通过 yt-dlp 解析并下载网页中的媒体
type YtDlp struct {
	path           string
	writeThumbnail bool
	logger         *logger.Logger
}

// NewYtDlp 创建 yt-dlp 下载器
func NewYtDlp(path string, writeThumbnail bool, log *logger.Logger) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{path: path, writeThumbnail: writeThumbnail, logger: log}
}

// Extract 下载到 dir，返回最终文件路径和标题
func (y *YtDlp) Extract(ctx context.Context, url, dir string, onProgress ProgressFunc) (*Result, error) {
	bin, err := exec.LookPath(y.path)
	if err != nil {
		return nil, &ToolMissingError{Tool: "yt-dlp", Err: err}
	}

	var (
		mu                      sync.Mutex
		lastFilename, lastTitle string
	)
	dl := ytdlp.New().
		SetExecutable(bin).
		PrintJSON().
		NoPlaylist().
		Continue().
		NoCheckCertificates().
		Output(filepath.Join(dir, OutputTemplate)).
		ProgressFunc(200*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			p := progressFromUpdate(update)
			mu.Lock()
			if update.Filename != "" {
				lastFilename = update.Filename
			}
			if p.Title != "" {
				lastTitle = p.Title
			}
			mu.Unlock()
			if onProgress != nil && ctx.Err() == nil {
				onProgress(p)
			}
		})
	if y.writeThumbnail {
		dl = dl.WriteThumbnail()
	}

	res, err := dl.Run(ctx, url)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &ToolMissingError{Tool: "yt-dlp", Err: err}
		}
		return nil, fmt.Errorf("%w: yt-dlp: %v", ErrRetrievalFailed, err)
	}

	mu.Lock()
	result := &Result{FilePath: lastFilename, Title: lastTitle}
	mu.Unlock()
	infos, err := res.GetExtractedInfo()
	if err != nil {
		y.logger.Warnf("解析 yt-dlp 输出信息失败: %v", err)
	}
	if len(infos) > 0 {
		info := infos[0]
		if info.Filename != nil && *info.Filename != "" {
			result.FilePath = *info.Filename
		}
		if info.Title != nil && *info.Title != "" {
			result.Title = *info.Title
		}
	}

	if result.FilePath == "" {
		return nil, fmt.Errorf("%w: yt-dlp 未返回文件信息", ErrRetrievalFailed)
	}
	// 输出模板已包含 dir，相对路径相对于工作目录
	if abs, err := filepath.Abs(result.FilePath); err == nil {
		result.FilePath = abs
	}
	return result, nil
}

func progressFromUpdate(update ytdlp.ProgressUpdate) Progress {
	var p Progress
	if update.TotalBytes > 0 {
		p.Percent = float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
	}
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			p.Speed = humanize.Bytes(uint64(float64(update.DownloadedBytes)/elapsed)) + "/s"
		}
	}
	if update.Info != nil && update.Info.Title != nil {
		p.Title = *update.Info.Title
	}
	return p
}
