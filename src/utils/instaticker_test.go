package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstaTicker(t *testing.T) {
	t.Run("ticks immediately", func(t *testing.T) {
		it := NewInstaTicker(time.Hour)
		defer it.Stop()

		select {
		case <-it.C:
		case <-time.After(time.Second):
			assert.Fail(t, "expected an immediate tick")
		}
	})
	t.Run("normal behavior", func(t *testing.T) {
		it := NewInstaTicker(time.Millisecond * 200)
		var ticks atomic.Int32
		go func() {
			for range it.C {
				ticks.Add(1)
			}
		}()
		time.Sleep(time.Millisecond * 500)
		assert.EqualValues(t, 3, ticks.Load())

		it.Stop()
		time.Sleep(time.Millisecond * 500)
		assert.EqualValues(t, 3, ticks.Load())
	})
	t.Run("stop", func(t *testing.T) {
		t.Run("never consumed a tick", func(t *testing.T) {
			it := NewInstaTicker(time.Second * 100)
			it.Stop()
		})
		t.Run("consumed one ticker tick", func(t *testing.T) {
			it := NewInstaTicker(time.Millisecond * 50)
			<-it.C
			<-it.C
			it.Stop()
		})
		t.Run("stopped twice", func(t *testing.T) {
			it := NewInstaTicker(time.Millisecond * 50)
			it.Stop()
			assert.NotPanics(t, it.Stop)
		})
	})
}
