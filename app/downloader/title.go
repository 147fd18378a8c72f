package downloader

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TitleFromPath 上游没有标题时根据文件名生成标题
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if ext := filepath.Ext(base); looksLikeExt(ext) && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	// macOS 上的文件名是 NFD，统一成 NFC 便于显示和搜索
	return norm.NFC.String(base)
}

// looksLikeExt 排除 "Ubuntu 22.04 ISO" 这类目录名中的点
func looksLikeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
