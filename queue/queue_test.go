package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestUnkeyedTasksRunInOrder(t *testing.T) {
	q := New(zap.NewNop())
	var got []int
	q.Push(func() { got = append(got, 1) })
	q.Push(func() { got = append(got, 2) })
	q.Push(func() { got = append(got, 3) })

	n := q.Drain()
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 0, q.Len())
}

func TestKeyedTasksDeduplicate(t *testing.T) {
	q := New(zap.NewNop())
	var got []string
	q.PushKeyed("refresh", func() { got = append(got, "first") })
	q.PushKeyed("refresh", func() { got = append(got, "second") })
	assert.Equal(t, 1, q.Len())

	n := q.Drain()
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"second"}, got)
}

func TestUnkeyedTasksNeverDeduplicate(t *testing.T) {
	q := New(zap.NewNop())
	count := 0
	q.Push(func() { count++ })
	q.Push(func() { count++ })
	q.Drain()
	assert.Equal(t, 2, count)
}

func TestEmptyKeyFallsBackToFifo(t *testing.T) {
	q := New(zap.NewNop())
	count := 0
	q.PushKeyed("", func() { count++ })
	q.PushKeyed("", func() { count++ })
	q.Drain()
	assert.Equal(t, 2, count)
}

func TestDrainOnEmptyQueue(t *testing.T) {
	q := New(zap.NewNop())
	assert.Equal(t, 0, q.Drain())
}

func TestPanickingTaskDoesNotStopDrain(t *testing.T) {
	q := New(zap.NewNop())
	ran := false
	q.Push(func() { panic("boom") })
	q.Push(func() { ran = true })
	n := q.Drain()
	assert.Equal(t, 2, n)
	assert.True(t, ran)
}

func TestPushDuringDrainIsSafe(t *testing.T) {
	q := New(zap.NewNop())
	var mu sync.Mutex
	reentered := false

	// A draining task enqueues more work; the new task must survive into
	// the next drain rather than deadlock or be lost.
	q.Push(func() {
		q.Push(func() {
			mu.Lock()
			reentered = true
			mu.Unlock()
		})
	})

	q.Drain()
	assert.Equal(t, 1, q.Len())
	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, reentered)
}

func TestConcurrentPushers(t *testing.T) {
	q := New(zap.NewNop())
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(func() {
					mu.Lock()
					total++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	drained := 0
	for q.Len() > 0 {
		drained += q.Drain()
	}
	assert.Equal(t, 800, drained)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 800, total)
}
