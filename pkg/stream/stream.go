// Package stream paces a completed response out as whitespace-delimited
// fragments.
package stream

import (
	"context"
	"strings"
	"time"
)

// Fragments sends each whitespace-separated token of text followed by a
// single space on the returned channel, waiting delay between fragments.
// The channel is closed when all fragments are sent or ctx is done.
func Fragments(ctx context.Context, text string, delay time.Duration, buffer int) <-chan string {
	if buffer < 0 {
		buffer = 0
	}
	out := make(chan string, buffer)

	go func() {
		defer close(out)

		var timer *time.Timer
		if delay > 0 {
			timer = time.NewTimer(delay)
			timer.Stop()
			defer timer.Stop()
		}

		for i, tok := range strings.Fields(text) {
			if i > 0 && timer != nil {
				timer.Reset(delay)
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- tok + " ":
			}
		}
	}()

	return out
}
