package utils

import (
	"context"
	"fmt"
	"time"
)

var sleep = time.Sleep

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Retry runs fn up to attempts times. Between attempts it waits backoff, doubling the wait
// after every failure. The last error is returned when all attempts fail; a done context
// stops retrying early.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		if werr := WaitFor(ctx, backoff); werr != nil {
			return fmt.Errorf("%w (retry aborted: %v)", err, werr)
		}
		backoff *= 2
	}

	return err
}
