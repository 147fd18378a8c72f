package service

import (
	"time"

	"golang.org/x/time/rate"
)

// progressTracker 决定哪些进度写入数据库、哪些推送到界面。
// 进度跨入新的 step 区间时落库，避免 "能被 5 整除" 在跳变时漏写；
// 界面事件另外按时间限流，落库的那次总会推送。
type progressTracker struct {
	step      int
	persisted int
	shown     int
	limiter   *rate.Limiter
}

func newProgressTracker(start, step int, interval time.Duration) *progressTracker {
	if step <= 0 {
		step = 5
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressTracker{
		step:      step,
		persisted: start,
		shown:     start,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// observe 返回是否落库、是否推送，以及应显示的(单调不减的)进度
func (t *progressTracker) observe(percent int) (persist, emit bool, value int) {
	if percent < 0 {
		percent = 0
	}
	// 100 只在完成时写入
	if percent > 99 {
		percent = 99
	}
	if percent > t.shown {
		t.shown = percent
	}
	if percent > t.persisted && percent/t.step > t.persisted/t.step {
		t.persisted = percent
		persist = true
	}
	emit = persist || t.limiter.Allow()
	return persist, emit, t.shown
}
