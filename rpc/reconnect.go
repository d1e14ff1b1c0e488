package rpc

import (
	"context"
	"time"
)

// reconnectLoop is the ReconnectController (C5) algorithm of spec.md §4.5:
// schedule a single-shot attempt after delayMs (0 on the first attempt),
// acquire the session lock and call connectIfNecessary; on success the
// resume protocol (run inside connectIfNecessaryLocked) clears Reconnecting;
// on failure, retry forever if configured, else give up.
//
// It runs on its own goroutine per reconnect episode, which is sufficient
// to serialize successive attempts (spec.md §5's "dedicated
// single-threaded scheduler") since each iteration fully completes one
// attempt (including the session lock's own acquire/release) before the
// next is scheduled.
func (c *Client) reconnectLoop(ctx context.Context, reason string) {
	delay := time.Duration(0)
	for {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		err := c.connectIfNecessary(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		retryForever := c.cfg.TryReconnectingForever
		userClosed := c.closedByUser
		c.mu.Unlock()

		if userClosed {
			return
		}
		if retryForever {
			delay = c.cfg.ReconnectDelay
			continue
		}

		c.closeClient(reason)
		return
	}
}
