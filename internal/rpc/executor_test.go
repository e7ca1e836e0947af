package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestExecutor_KeyOrder(t *testing.T) {
	e := newExecutor(4, nil)
	e.start()
	defer e.halt()

	const keys, perKey = 5, 50
	var mu sync.Mutex
	got := make(map[string][]int)
	var wg sync.WaitGroup
	for i := 0; i < perKey; i++ {
		for k := 0; k < keys; k++ {
			key := fmt.Sprintf("cap-%d", k)
			i := i
			wg.Add(1)
			if err := e.submit(key, func() {
				defer wg.Done()
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			}); err != nil {
				t.Fatal(err)
			}
		}
	}
	wg.Wait()

	for key, seq := range got {
		for i, v := range seq {
			if v != i {
				t.Fatalf("%s: task %d ran at position %d", key, v, i)
			}
		}
	}
}

func TestExecutor_SubmitBeforeStart(t *testing.T) {
	e := newExecutor(1, nil)
	ran := make(chan struct{})
	if err := e.submit("k", func() { close(ran) }); err != nil {
		t.Fatal(err)
	}
	e.start()
	defer e.halt()

	select {
	case <-ran:
	case <-time.After(testTimeout):
		t.Fatal("queued task did not run after start")
	}
}

func TestExecutor_PanicRecovered(t *testing.T) {
	var (
		mu      sync.Mutex
		panicky string
	)
	e := newExecutor(1, func(key string, _ any, _ []byte) {
		mu.Lock()
		panicky = key
		mu.Unlock()
	})
	e.start()
	defer e.halt()

	_ = e.submit("bad", func() { panic("boom") })
	done := make(chan struct{})
	_ = e.submit("bad", func() { close(done) })

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("lane stalled after a panic")
	}
	mu.Lock()
	defer mu.Unlock()
	if panicky != "bad" {
		t.Errorf("panic handler key = %q, want bad", panicky)
	}
	if e.stats().Panicked != 1 {
		t.Errorf("Panicked = %d, want 1", e.stats().Panicked)
	}
}

func TestExecutor_HaltRejectsSubmit(t *testing.T) {
	e := newExecutor(2, nil)
	e.start()
	e.halt()

	if err := e.submit("k", func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("submit() after halt error = %v, want ErrClosed", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := e.wait(ctx); err != nil {
		t.Errorf("wait() error = %v", err)
	}
}
