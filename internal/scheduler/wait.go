package scheduler

import (
	"context"
	"time"
)

// NextWait returns how long to sleep so that consecutive cycles start
// interval apart. A cycle that overran the interval gets no wait.
func NextWait(interval, elapsed time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	wait := interval - elapsed
	if wait < 0 {
		return 0
	}
	return wait
}

// Sleep blocks for d or until ctx is done. It returns false when ctx ended
// first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
