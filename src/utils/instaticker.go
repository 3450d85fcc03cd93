package utils

import (
	"sync"
	"time"
)

// An equivalent to [time.Ticker] that also ticks immediately upon creation.
// Used by the commands to poll job progress without waiting a full interval
// for the first line of output.
type InstaTicker struct {
	C <-chan time.Time

	done     chan struct{}
	stopOnce sync.Once
	ticker   *time.Ticker
}

func NewInstaTicker(d time.Duration) *InstaTicker {
	ticker := time.NewTicker(d)
	c := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		send := func(t time.Time) bool {
			select {
			case <-done:
				return false
			case c <- t:
				return true
			}
		}

		if !send(time.Now()) {
			return
		}
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				if !send(t) {
					return
				}
			}
		}
	}()
	return &InstaTicker{
		C:      c,
		done:   done,
		ticker: ticker,
	}
}

// Stops the ticker. Safe to call more than once.
func (it *InstaTicker) Stop() {
	it.stopOnce.Do(func() {
		it.ticker.Stop()
		close(it.done)
	})
}
