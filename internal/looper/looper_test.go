package looper

import (
	"sync"
	"testing"
	"time"
)

func TestLooper_runsInOrder(t *testing.T) {
	t.Parallel()

	l := New(nil)
	defer l.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		l.Post(func() {
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
		t.Fatal("timed out waiting for posted functions")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestLooper_closeDrainsQueue(t *testing.T) {
	t.Parallel()

	l := New(nil)

	var count int
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		l.Post(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	l.Close()

	mu.Lock()
	if count != 10 {
		t.Errorf("count = %d after Close(), want 10", count)
	}
	mu.Unlock()

	// Posting after close is dropped, and a second Close is safe.
	l.Post(func() { t.Error("function posted after Close() ran") })
	l.Close()
}

func TestLooper_survivesPanic(t *testing.T) {
	t.Parallel()

	l := New(nil)
	defer l.Close()

	done := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("looper stopped after a panicking function")
	}
}

func TestInline(t *testing.T) {
	t.Parallel()

	ran := false
	Inline{}.Post(func() { ran = true })
	if !ran {
		t.Error("Inline.Post() did not run fn synchronously")
	}
}
