package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/bowtie/internal/cases"
)

func TestClock_StartsAtOne(t *testing.T) {
	c := NewClock()
	assert.Equal(t, cases.Seq(0), c.Current())
	assert.Equal(t, cases.Seq(1), c.Next())
	assert.Equal(t, cases.Seq(2), c.Next())
	assert.Equal(t, cases.Seq(2), c.Current())
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, cases.Seq(101), c.Next())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const goroutines, perGoroutine = 8, 250

	var mu sync.Mutex
	seen := make(map[cases.Seq]bool)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range perGoroutine {
				seq := c.Next()
				mu.Lock()
				assert.False(t, seen[seq], "seq %d handed out twice", seq)
				seen[seq] = true
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, cases.Seq(goroutines*perGoroutine), c.Current())
}
