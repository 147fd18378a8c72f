package pathhelper

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSubPath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")

	assert.True(t, IsSubPath(filepath.Join(root, "a.mp4"), root))
	assert.True(t, IsSubPath(filepath.Join(root, "Album", "01.flac"), root))
	assert.False(t, IsSubPath(root, root))
	assert.False(t, IsSubPath(filepath.Join(root, "..", "other.mp4"), root))
	assert.False(t, IsSubPath(root+"-old/a.mp4", root))
}

func TestTopLevel(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")

	assert.Equal(t, filepath.Join(root, "Album"), TopLevel(filepath.Join(root, "Album", "cd1", "01.flac"), root))
	assert.Equal(t, filepath.Join(root, "a.iso"), TopLevel(filepath.Join(root, "a.iso"), root))
	assert.Empty(t, TopLevel("/elsewhere/a.iso", root))
}
