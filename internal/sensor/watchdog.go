package sensor

import (
	"context"
	"sync"
	"time"
)

// Watchdog counts down timeout ticks after the last Kick and calls onExpire
// when the count reaches zero. At most one countdown goroutine exists at a
// time; a Kick while it runs only resets the remaining ticks.
//
// onExpire runs while the watchdog lock is held, so a Kick that races the
// expiry waits for it and then starts a fresh countdown. afterExpire runs
// once the lock is released; Kick does not wait for it.
type Watchdog struct {
	timeout     int
	tick        time.Duration
	onExpire    func(ctx context.Context)
	afterExpire func(ctx context.Context)

	mu        sync.Mutex
	remaining int
	running   bool
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatchdog returns an idle watchdog. A timeout <= 0 disables it.
// afterExpire may be nil.
func NewWatchdog(timeout int, tick time.Duration, onExpire, afterExpire func(ctx context.Context)) *Watchdog {
	if tick <= 0 {
		tick = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		timeout:     timeout,
		tick:        tick,
		onExpire:    onExpire,
		afterExpire: afterExpire,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Kick starts a countdown or, if one is running, resets it to the full
// timeout. It reports whether a new countdown goroutine was started.
func (w *Watchdog) Kick() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timeout <= 0 {
		return false
	}
	w.remaining = w.timeout
	if w.running {
		return false
	}
	w.running = true
	w.wg.Add(1)
	go w.countdown()
	return true
}

// Remaining is the number of ticks left before expiry, 0 when idle.
func (w *Watchdog) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remaining
}

// Running reports whether a countdown is in progress.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop cancels any countdown and waits for it to exit. The watchdog cannot
// be restarted.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watchdog) countdown() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.mu.Lock()
			w.running = false
			w.remaining = 0
			w.mu.Unlock()
			return
		case <-ticker.C:
		}

		w.mu.Lock()
		if w.remaining > 0 {
			w.remaining--
		}
		if w.remaining > 0 {
			w.mu.Unlock()
			continue
		}
		w.running = false
		if w.ctx.Err() == nil && w.onExpire != nil {
			w.onExpire(w.ctx)
		}
		w.mu.Unlock()

		if w.ctx.Err() == nil && w.afterExpire != nil {
			w.afterExpire(w.ctx)
		}
		return
	}
}
