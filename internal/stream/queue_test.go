package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueRunsInOrder(t *testing.T) {
	q := NewTaskQueue()
	defer q.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		q.Push(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTaskQueueCloseDropsPending(t *testing.T) {
	q := NewTaskQueue()
	started := make(chan struct{})
	release := make(chan struct{})
	ran := make(chan int, 2)

	q.Push(func() {
		close(started)
		<-release
		ran <- 1
	})
	q.Push(func() { ran <- 2 })
	<-started

	q.Close()
	close(release)
	assert.Equal(t, 1, <-ran)
	assert.False(t, q.Push(func() { ran <- 3 }))

	select {
	case v := <-ran:
		t.Fatalf("task %d ran after close", v)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, q.Len())
}

func TestTaskQueueSurvivesPanic(t *testing.T) {
	q := NewTaskQueue()
	defer q.Close()
	done := make(chan struct{})
	q.Push(func() { panic("boom") })
	q.Push(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}
