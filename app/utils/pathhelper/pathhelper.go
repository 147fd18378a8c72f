package pathhelper

import (
	"path/filepath"
	"strings"
)

// IsSubPath path 是否位于 root 之下，root 本身不算
func IsSubPath(path, root string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." {
		return false
	}
	// 避免 ../ 跳出目录
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// TopLevel 返回 path 在 root 下的第一级路径，用于定位种子下载出的目录
func TopLevel(path, root string) string {
	if !IsSubPath(path, root) {
		return ""
	}
	absRoot, _ := filepath.Abs(root)
	absPath, _ := filepath.Abs(path)
	rel, _ := filepath.Rel(absRoot, absPath)
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return filepath.Join(absRoot, first)
}
