package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_DoesNotMoveOnItsOwn(t *testing.T) {
	clock := NewFixedClock(Epoch)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Now())
}

func TestFixedClock_Advance(t *testing.T) {
	clock := NewFixedClock(Epoch)
	clock.Advance(time.Second)
	clock.Advance(2 * time.Second)
	assert.Equal(t, Epoch.Add(3*time.Second), clock.Now())
}

func TestFixedClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFixedClock(Epoch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(50*time.Millisecond), clock.Now())
}
