package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"media-grab/app/logger"
	"media-grab/app/utils/pathhelper"

	"github.com/dustin/go-humanize"
)

var (
	aria2PercentRe  = regexp.MustCompile(`\((\d{1,3})%\)`)
	aria2SpeedRe    = regexp.MustCompile(`DL:([0-9.]+[KMGT]?i?B)`)
	aria2CompleteRe = regexp.MustCompile(`Download complete: (.+)$`)
)

// defaultStopGrace 未配置时 SIGINT 之后等待 aria2c 退出的时间
const defaultStopGrace = 5 * time.Second

// Aria2 通过 aria2c 子进程下载种子
type Aria2 struct {
	path      string
	stopGrace time.Duration
	logger    *logger.Logger
}

// NewAria2 创建 aria2c 下载器
func NewAria2(path string, stopGrace time.Duration, log *logger.Logger) *Aria2 {
	if path == "" {
		path = "aria2c"
	}
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}
	return &Aria2{path: path, stopGrace: stopGrace, logger: log}
}

// Download 下载到 dir，做种时间为 0，下载完成即退出
func (a *Aria2) Download(ctx context.Context, link, dir string, onProgress ProgressFunc) (*Result, error) {
	bin, err := exec.LookPath(a.path)
	if err != nil {
		return nil, &ToolMissingError{Tool: "aria2c", Err: err}
	}

	args := []string{
		"--enable-rpc=false",
		"--seed-time=0",
		"--summary-interval=1",
		"--console-log-level=notice",
		"--file-allocation=none",
		"-d", dir,
		link,
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	// 先发 SIGINT 让 aria2c 保存控制文件，超时后再强制结束
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = a.stopGrace

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &ToolMissingError{Tool: "aria2c", Err: err}
		}
		return nil, fmt.Errorf("%w: 启动 aria2c 失败: %v", ErrRetrievalFailed, err)
	}
	a.logger.Debugf("aria2c 已启动: pid=%d, 链接=%s", cmd.Process.Pid, link)

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitErr <- err
	}()

	var completed []string
	tail := make([]string, 0, 5)
	scanner := bufio.NewScanner(pr)
	scanner.Split(scanConsoleLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// 已取消时只排空输出，等待进程退出
		if ctx.Err() != nil {
			continue
		}
		if p, ok := ParseAria2Progress(line); ok && onProgress != nil {
			onProgress(p)
		}
		if path, ok := ParseAria2Complete(line); ok {
			completed = append(completed, path)
		}
		if len(tail) == cap(tail) {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	// 扫描出错时继续排空，避免子进程阻塞在写管道上
	_, _ = io.Copy(io.Discard, pr)

	err = <-waitErr
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: aria2c 退出异常: %v: %s", ErrRetrievalFailed, err, strings.Join(tail, " | "))
	}

	path := topLevelEntry(dir, completed)
	if path == "" {
		return nil, fmt.Errorf("%w: aria2c 没有报告下载完成的文件", ErrRetrievalFailed)
	}
	return &Result{FilePath: path, Title: TitleFromPath(path)}, nil
}

// ParseAria2Progress 解析 aria2c 控制台进度行，如
// [#2089b0 400KiB/33MiB(1%) CN:1 DL:115KiB ETA:4m51s]
func ParseAria2Progress(line string) (Progress, bool) {
	m := aria2PercentRe.FindStringSubmatch(line)
	if m == nil || !strings.HasPrefix(line, "[#") {
		return Progress{}, false
	}
	percent, err := strconv.Atoi(m[1])
	if err != nil || percent > 100 {
		return Progress{}, false
	}

	p := Progress{Percent: float64(percent)}
	if s := aria2SpeedRe.FindStringSubmatch(line); s != nil {
		if n, err := humanize.ParseBytes(s[1]); err == nil {
			p.Speed = humanize.Bytes(n) + "/s"
		} else {
			p.Speed = s[1] + "/s"
		}
	}
	return p, true
}

// ParseAria2Complete 解析下载完成通知，忽略元数据和内存中的种子
func ParseAria2Complete(line string) (string, bool) {
	m := aria2CompleteRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	path := strings.TrimSpace(m[1])
	if strings.HasPrefix(path, "[METADATA]") || strings.HasPrefix(path, "[MEMORY]") {
		return "", false
	}
	return path, true
}

// topLevelEntry 多文件种子返回其顶层目录，单文件返回文件本身。
// aria2c 输出的路径相对于工作目录，与 -d 的写法一致。
func topLevelEntry(dir string, completed []string) string {
	for i := len(completed) - 1; i >= 0; i-- {
		if top := pathhelper.TopLevel(completed[i], dir); top != "" {
			return top
		}
	}
	return ""
}

// scanConsoleLines 以 \r 或 \n 分行，aria2c 的进度行用 \r 刷新
func scanConsoleLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
