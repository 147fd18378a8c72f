package downloader

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind 下载方式
type Kind string

const (
	KindTorrent Kind = "torrent" // magnet 或 .torrent
	KindGeneric Kind = "generic" // yt-dlp 通用提取
)

// ErrInvalidURL 提交的链接不合法
var ErrInvalidURL = errors.New("链接不合法")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("download_url", validateDownloadURL)
}

// Classify 按链接形式决定下载方式
func Classify(raw string) Kind {
	s := strings.TrimSpace(raw)
	if hasMagnetScheme(s) || hasTorrentSuffix(s) {
		return KindTorrent
	}
	return KindGeneric
}

// ValidateSubmission 校验提交的链接，返回清理后的链接和下载方式
func ValidateSubmission(raw string) (string, Kind, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", fmt.Errorf("%w: 链接为空", ErrInvalidURL)
	}

	switch {
	case hasMagnetScheme(s):
		if !validMagnet(s) {
			return "", "", fmt.Errorf("%w: magnet 链接缺少 xt 参数: %q", ErrInvalidURL, s)
		}
		return s, KindTorrent, nil
	case hasTorrentSuffix(s) && filepath.IsAbs(s):
		// 监控目录中的本地种子文件
		return s, KindTorrent, nil
	}

	if err := validate.Var(s, "required,download_url"); err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, s)
	}
	return s, Classify(s), nil
}

func hasMagnetScheme(s string) bool {
	return len(s) >= len("magnet:") && strings.EqualFold(s[:len("magnet:")], "magnet:")
}

func hasTorrentSuffix(s string) bool {
	p := s
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), ".torrent")
}

func validMagnet(s string) bool {
	q := s[len("magnet:"):]
	q = strings.TrimPrefix(q, "?")
	values, err := url.ParseQuery(q)
	if err != nil {
		return false
	}
	return values.Get("xt") != ""
}

func validateDownloadURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}
