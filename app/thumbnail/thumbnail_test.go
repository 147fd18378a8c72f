package thumbnail

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	require.NoError(t, imaging.Save(img, path))
}

func TestGenerateResizesSiblingImage(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(media, []byte("video"), 0644))
	source := filepath.Join(dir, "clip.png")
	writeImage(t, source, 1280, 720)

	out, err := New(320).Generate(media)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip"+Suffix), out)
	assert.NoFileExists(t, source, "原封面图应被删除")
	assert.FileExists(t, media)

	thumb, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 180), thumb.Bounds())
}

func TestGenerateKeepsSmallImages(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(media, []byte("audio"), 0644))
	writeImage(t, filepath.Join(dir, "song.jpg"), 100, 100)

	out, err := New(320).Generate(media)
	require.NoError(t, err)

	thumb, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Bounds().Dx())
}

func TestGenerateWithoutSource(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "file.zip")
	require.NoError(t, os.WriteFile(media, []byte("zip"), 0644))

	_, err := New(320).Generate(media)
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = New(320).Generate(dir)
	assert.ErrorIs(t, err, ErrNoSource)
}
