package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pending(s *signal) int {
	n := 0
	for {
		select {
		case <-s.Wait():
			n++
		default:
			return n
		}
	}
}

func TestSignal_CoalescesBursts(t *testing.T) {
	s := newSignal()
	for i := 0; i < 10; i++ {
		s.Notify()
	}
	assert.Equal(t, 1, pending(s))
	assert.Equal(t, 0, pending(s))
}

func TestSignal_NotifyAfterReceive(t *testing.T) {
	s := newSignal()
	s.Notify()
	<-s.Wait()
	s.Notify()
	assert.Equal(t, 1, pending(s))
}
