package monitor

import (
	"context"
	"time"
)

// Sleeper pauses for d or until ctx is done, in which case it returns the
// context error.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the default Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return ctx.Err()
	}
}
