package scheduler

import (
	"sync"
	"time"
)

// Ticker implements ports.Scheduler with one goroutine per schedule.
type Ticker struct{}

// Every calls fn every interval until cancel is called. cancel is idempotent
// and returns immediately; an fn already running is left to finish.
func (Ticker) Every(interval time.Duration, fn func()) func() {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				// cancel may race with the tick; prefer stopping.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
