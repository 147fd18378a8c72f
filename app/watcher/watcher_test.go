package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-grab/app/logger"
	"media-grab/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
	known     map[string]bool
}

func (f *fakeSubmitter) Submit(raw string) (*model.DownloadTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, raw)
	return &model.DownloadTask{ID: uint(len(f.submitted)), URL: raw}, nil
}

func (f *fakeSubmitter) Known(url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.submitted {
		if s == url {
			return true, nil
		}
	}
	return f.known[url], nil
}

func (f *fakeSubmitter) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func newTestWatcher(t *testing.T, dir string, sub Submitter) *TorrentWatcher {
	t.Helper()
	tw, err := New(dir, sub, logger.NewNop())
	require.NoError(t, err)
	tw.readyInterval = 20 * time.Millisecond
	tw.readyTimeout = 2 * time.Second
	t.Cleanup(func() { _ = tw.Stop() })
	return tw
}

func TestWatcherSubmitsExistingTorrents(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.torrent")
	fresh := filepath.Join(dir, "fresh.TORRENT")
	require.NoError(t, os.WriteFile(old, []byte("d8:announce"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("d8:announce"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	sub := &fakeSubmitter{known: map[string]bool{old: true}}
	tw := newTestWatcher(t, dir, sub)
	require.NoError(t, tw.Start())

	assert.Eventually(t, func() bool { return len(sub.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{fresh}, sub.list())
}

func TestWatcherSubmitsNewTorrent(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{known: map[string]bool{}}
	tw := newTestWatcher(t, dir, sub)
	require.NoError(t, tw.Start())

	path := filepath.Join(dir, "linux.torrent")
	require.NoError(t, os.WriteFile(path, []byte("d8:announce"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.iso"), []byte("x"), 0644))

	assert.Eventually(t, func() bool { return len(sub.list()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{path}, sub.list())
}

func TestWatcherDoubleStart(t *testing.T) {
	tw := newTestWatcher(t, t.TempDir(), &fakeSubmitter{})
	require.NoError(t, tw.Start())
	assert.Error(t, tw.Start())
}
