package hub

import (
	"context"
	"testing"
	"time"

	"media-grab/app/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return h
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "订阅通道已关闭")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
		return Event{}
	}
}

func TestPostRunsInOrder(t *testing.T) {
	h := startHub(t)

	var got []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		h.Post(func() { got = append(got, i) })
	}
	h.Post(func() { close(done) })
	<-done

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestPostSurvivesPanic(t *testing.T) {
	h := startHub(t)

	done := make(chan struct{})
	h.Post(func() { panic("bad callback") })
	h.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panic 之后循环停止了")
	}
}

func TestCallbacksPublishEvents(t *testing.T) {
	h := startHub(t)
	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	cb := h.Attach(4)
	h.Post(func() { cb.OnProgress(30, "2.0 MB/s") })

	e := receive(t, events)
	assert.Equal(t, EventProgress, e.Type)
	assert.Equal(t, uint(4), e.TaskID)
	assert.Equal(t, 30, e.Progress)

	live, ok := h.Live(4)
	require.True(t, ok)
	assert.Equal(t, "2.0 MB/s", live.Speed)

	h.Post(func() { cb.OnComplete("/data/a.mp4", "a") })
	e = receive(t, events)
	assert.Equal(t, EventComplete, e.Type)
	assert.Equal(t, "/data/a.mp4", e.FilePath)

	_, ok = h.Lookup(4)
	assert.False(t, ok, "完成后句柄应移除")
	_, ok = h.Live(4)
	assert.False(t, ok)
}

func TestPausedKeepsHandle(t *testing.T) {
	h := startHub(t)
	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	cb := h.Attach(2)
	h.Post(cb.OnPaused)

	assert.Equal(t, EventPaused, receive(t, events).Type)
	_, ok := h.Lookup(2)
	assert.True(t, ok)
}

func TestAttachLookupDetach(t *testing.T) {
	h := New(logger.NewNop())

	_, ok := h.Lookup(1)
	assert.False(t, ok)

	h.Attach(1)
	h.Attach(1)
	assert.Equal(t, 1, h.Handles())
	_, ok = h.Lookup(1)
	assert.True(t, ok)

	h.Detach(1)
	assert.Equal(t, 0, h.Handles())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := startHub(t)
	events, unsubscribe := h.Subscribe()

	unsubscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)
}

func TestRunExitClosesSubscribers(t *testing.T) {
	h := New(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(finished)
	}()

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()
	cancel()
	<-finished

	_, ok := <-events
	assert.False(t, ok)

	// 循环结束后 Post 不会阻塞
	h.Post(func() {})
}
