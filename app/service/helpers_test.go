package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"media-grab/app/database"
	"media-grab/app/downloader"
	"media-grab/app/logger"
	"media-grab/app/store"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.TaskStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "tasks.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return store.NewTaskStore(db)
}

type fakeFetch func(ctx context.Context, url, dir string, onProgress downloader.ProgressFunc) (*downloader.Result, error)

// fakeDownloader 同时实现 TorrentClient 和 MediaExtractor
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	fetch fakeFetch
}

func (f *fakeDownloader) record(url string) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
}

func (f *fakeDownloader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDownloader) Download(ctx context.Context, link, dir string, onProgress downloader.ProgressFunc) (*downloader.Result, error) {
	f.record(link)
	return f.fetch(ctx, link, dir, onProgress)
}

func (f *fakeDownloader) Extract(ctx context.Context, url, dir string, onProgress downloader.ProgressFunc) (*downloader.Result, error) {
	f.record(url)
	return f.fetch(ctx, url, dir, onProgress)
}

// blockingFetch 一直等到 ctx 被取消
func blockingFetch(started chan<- struct{}) fakeFetch {
	return func(ctx context.Context, _, _ string, onProgress downloader.ProgressFunc) (*downloader.Result, error) {
		onProgress(downloader.Progress{Percent: 1})
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// recorder 记录回调调用情况
type recorder struct {
	mu        sync.Mutex
	progress  []int
	completed []string
	errors    []string
	paused    int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(percent int, _ string) {
			r.mu.Lock()
			r.progress = append(r.progress, percent)
			r.mu.Unlock()
		},
		OnComplete: func(filePath, _ string) {
			r.mu.Lock()
			r.completed = append(r.completed, filePath)
			r.mu.Unlock()
		},
		OnError: func(message string) {
			r.mu.Lock()
			r.errors = append(r.errors, message)
			r.mu.Unlock()
		},
		OnPaused: func() {
			r.mu.Lock()
			r.paused++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() (progress []int, completed, errs []string, paused int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress...), append([]string(nil), r.completed...),
		append([]string(nil), r.errors...), r.paused
}

func newTestExecutor(t *testing.T, st *store.TaskStore, torrent, extractor *fakeDownloader) *Executor {
	t.Helper()
	return NewExecutor(st, torrent, extractor, InlineDispatcher, ExecutorOptions{
		OutputDir:    filepath.Join(t.TempDir(), "downloads"),
		ProgressStep: 5,
	}, logger.NewNop())
}

func intPtr(v int) *int { return &v }
