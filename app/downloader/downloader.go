package downloader

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrToolMissing 外部下载工具未安装
	ErrToolMissing = errors.New("外部下载工具不存在")
	// ErrRetrievalFailed 网络、解析或内容提取失败
	ErrRetrievalFailed = errors.New("下载失败")
)

// ToolMissingError 记录缺失的工具名称，errors.Is 可匹配 ErrToolMissing
type ToolMissingError struct {
	Tool string
	Err  error
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("未找到 %s，请先安装 %s 或在配置中指定其路径", e.Tool, e.Tool)
}

func (e *ToolMissingError) Is(target error) bool {
	return target == ErrToolMissing
}

func (e *ToolMissingError) Unwrap() error {
	return e.Err
}

// Progress 外部工具上报的一次进度
type Progress struct {
	Percent float64 // 0-100
	Speed   string  // 可读速度，如 "1.2 MB/s"
	Title   string  // 工具已解析出的标题，可能为空
}

// ProgressFunc 进度回调，在下载所在的 goroutine 中调用
type ProgressFunc func(Progress)

// Result 下载成功后的结果
type Result struct {
	FilePath string
	Title    string
}

// TorrentClient 通过 magnet 链接或 .torrent 下载到指定目录
type TorrentClient interface {
	Download(ctx context.Context, link, dir string, onProgress ProgressFunc) (*Result, error)
}

// MediaExtractor 通用的网页/视频/文件提取下载器
type MediaExtractor interface {
	Extract(ctx context.Context, url, dir string, onProgress ProgressFunc) (*Result, error)
}
