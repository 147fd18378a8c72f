package thumbnail

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrNoSource 媒体文件旁边没有可用的封面图
var ErrNoSource = errors.New("没有找到封面图")

// Suffix 生成的缩略图文件后缀
const Suffix = ".thumb.jpg"

var sourceExts = []string{".webp", ".jpg", ".jpeg", ".png"}

// Generator 把 yt-dlp 写出的封面图缩放成统一大小的 JPEG
type Generator struct {
	width int
}

// New 创建缩略图生成器
func New(width int) *Generator {
	if width <= 0 {
		width = 320
	}
	return &Generator{width: width}
}

// Generate 查找与媒体文件同名的图片，生成缩略图并返回其路径。
// 原图在缩略图写入后删除，任务记录只保存缩略图。
func (g *Generator) Generate(mediaPath string) (string, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s 是目录", ErrNoSource, mediaPath)
	}

	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	source := findSource(base)
	if source == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSource, mediaPath)
	}

	img, err := imaging.Open(source, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("读取封面图失败: %w", err)
	}
	if img.Bounds().Dx() > g.width {
		img = imaging.Resize(img, g.width, 0, imaging.Lanczos)
	}

	out := base + Suffix
	if err := imaging.Save(img, out, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("保存缩略图失败: %w", err)
	}
	if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
		return out, fmt.Errorf("删除原封面图失败: %w", err)
	}
	return out, nil
}

func findSource(base string) string {
	for _, ext := range sourceExts {
		for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	return ""
}
