package power

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-grab/app/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeInhibit(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-inhibit")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0755))
	return script
}

func TestDisabledInhibitorOnlyLogs(t *testing.T) {
	i := NewInhibitor(false, "", logger.NewNop())
	defer i.Close()

	i.Acquire()
	assert.False(t, i.Held())
	i.Release()
	assert.False(t, i.Held())
}

func TestInhibitorStartsAndKillsProcess(t *testing.T) {
	i := NewInhibitor(true, writeFakeInhibit(t, "exec sleep 30\n"), logger.NewNop())
	defer i.Close()

	i.Acquire()
	require.Eventually(t, i.Held, 2*time.Second, 5*time.Millisecond)

	// 重复获取不会启动第二个进程
	i.Acquire()
	assert.True(t, i.Held())

	i.Release()
	assert.Eventually(t, func() bool { return !i.Held() }, 2*time.Second, 5*time.Millisecond)
}

func TestInhibitorAcquireDoesNotWaitForProcess(t *testing.T) {
	i := NewInhibitor(true, writeFakeInhibit(t, "exec sleep 30\n"), logger.NewNop())
	defer i.Close()

	// 反复获取和释放只更新期望状态，进程在后台启动
	begin := time.Now()
	for n := 0; n < 100; n++ {
		i.Acquire()
		i.Release()
	}
	assert.Less(t, time.Since(begin), 500*time.Millisecond)

	i.Acquire()
	require.Eventually(t, i.Held, 2*time.Second, 5*time.Millisecond)
}

func TestInhibitorCloseReleases(t *testing.T) {
	i := NewInhibitor(true, writeFakeInhibit(t, "exec sleep 30\n"), logger.NewNop())

	i.Acquire()
	require.Eventually(t, i.Held, 2*time.Second, 5*time.Millisecond)

	i.Close()
	assert.False(t, i.Held())
	i.Close()
}

func TestInhibitorMissingBinary(t *testing.T) {
	i := NewInhibitor(true, filepath.Join(t.TempDir(), "missing"), logger.NewNop())
	defer i.Close()

	i.Acquire()
	i.Release()
	i.Close()
	assert.False(t, i.Held())
}
