package route

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures a bounded number of times with a
// linearly growing delay.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (r RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsTransient(err) || i == attempts-1 {
			return err
		}

		timer := time.NewTimer(r.BaseDelay * time.Duration(i+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
