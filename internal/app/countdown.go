package app

import (
	"sync"
	"time"
)

// Scheduler runs fn every interval until the returned stop func is called.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler backs Scheduler with a time.Ticker goroutine.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// Countdown decrements a second counter on every scheduler tick and reports
// expiry once. Callbacks run outside the countdown's lock; a tick already in
// flight when Stop is called may still be delivered, so owners drop callbacks
// from a countdown they no longer hold.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	stopped   bool
	cancel    func()
	onTick    func(c *Countdown, remaining int)
	onExpire  func(c *Countdown)
}

// StartCountdown begins counting down from seconds, one second per interval.
func StartCountdown(sched Scheduler, interval time.Duration, seconds int, onTick func(*Countdown, int), onExpire func(*Countdown)) *Countdown {
	c := &Countdown{remaining: seconds, onTick: onTick, onExpire: onExpire}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = sched.Every(interval, c.advance)
	return c
}

func (c *Countdown) advance() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.stopped = true
		c.cancel()
	}
	c.mu.Unlock()

	if expired {
		c.onExpire(c)
		return
	}
	c.onTick(c, remaining)
}

// Stop releases the scheduler handle and returns the seconds left.
func (c *Countdown) Stop() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		c.cancel()
	}
	return c.remaining
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
