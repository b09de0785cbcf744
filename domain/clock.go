package domain

import (
	"sync/atomic"
	"time"
)

// MonotonicClock returns a clock whose readings strictly increase, so two
// mutations inside the same nanosecond still order their updatedAt values.
func MonotonicClock() func() time.Time {
	var last int64
	return func() time.Time {
		for {
			now := time.Now().UnixNano()
			prev := atomic.LoadInt64(&last)
			if now <= prev {
				now = prev + 1
			}
			if atomic.CompareAndSwapInt64(&last, prev, now) {
				return time.Unix(0, now).UTC()
			}
		}
	}
}
