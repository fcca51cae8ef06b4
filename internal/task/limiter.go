package task

import (
	"time"

	"github.com/projectdiscovery/gcache"
)

// WarnLimiter lets a warning per key through at most once per interval.
type WarnLimiter struct {
	recent gcache.Cache[string, struct{}]
}

// NewWarnLimiter tracks up to size keys.
func NewWarnLimiter(size int, every time.Duration) *WarnLimiter {
	return &WarnLimiter{
		recent: gcache.New[string, struct{}](size).
			LRU().
			Expiration(every).
			Build(),
	}
}

// Allow reports whether a warning for key may be logged now.
func (l *WarnLimiter) Allow(key string) bool {
	if l.recent.Has(key) {
		return false
	}
	_ = l.recent.Set(key, struct{}{})
	return true
}
