package promise

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

func TestFuture_PendingUntilResolved(t *testing.T) {
	f, r := New[string]()

	if got := f.State(); got != StatePending {
		t.Fatalf("State() = %v, want pending", got)
	}
	if _, _, settled := f.Result(); settled {
		t.Fatal("Result() reports settled on a new future")
	}

	if !r.Resolve("ok") {
		t.Fatal("Resolve() = false on a pending future")
	}

	v, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if v != "ok" {
		t.Errorf("Await() = %q, want %q", v, "ok")
	}
	if got := f.State(); got != StateResolved {
		t.Errorf("State() = %v, want resolved", got)
	}
}

func TestFuture_SettlesOnce(t *testing.T) {
	var buf bytes.Buffer
	log := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})

	f, r := New[int](WithLogger(log), WithName("double"))
	r.Resolve(1)

	if r.Resolve(2) {
		t.Error("second Resolve() = true, want false")
	}
	if r.Reject(errors.New("late")) {
		t.Error("Reject() after Resolve() = true, want false")
	}

	v, err := f.Await(context.Background())
	if err != nil || v != 1 {
		t.Errorf("Await() = (%d, %v), want (1, nil)", v, err)
	}
	if !strings.Contains(buf.String(), "already settled") {
		t.Errorf("expected a discipline warning, log = %q", buf.String())
	}
}

func TestFuture_Reject(t *testing.T) {
	f, r := New[int]()
	boom := errors.New("boom")
	r.Reject(boom)

	_, err := f.Await(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Await() error = %v, want %v", err, boom)
	}
	if f.State() != StateRejected {
		t.Errorf("State() = %v, want rejected", f.State())
	}
}

func TestFuture_RejectNil(t *testing.T) {
	f, r := New[int]()
	r.Reject(nil)
	if _, err := f.Await(context.Background()); !errors.Is(err, ErrNilRejection) {
		t.Errorf("Await() error = %v, want ErrNilRejection", err)
	}
}

func TestFuture_ConcurrentSettleHasOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		f, r := New[string]()

		const waiters = 8
		results := make([]string, waiters)
		errs := make([]error, waiters)
		var wg sync.WaitGroup
		for i := 0; i < waiters; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.Await(context.Background())
			}(i)
		}

		var wins sync.WaitGroup
		var mu sync.Mutex
		won := 0
		for i := 0; i < 4; i++ {
			wins.Add(2)
			go func() {
				defer wins.Done()
				if r.Resolve("value") {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
			go func() {
				defer wins.Done()
				if r.Reject(errors.New("rejected")) {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wins.Wait()
		wg.Wait()

		if won != 1 {
			t.Fatalf("round %d: %d settle calls succeeded, want 1", round, won)
		}
		for i := 1; i < waiters; i++ {
			if results[i] != results[0] || (errs[i] == nil) != (errs[0] == nil) {
				t.Fatalf("round %d: waiter %d saw (%q, %v), waiter 0 saw (%q, %v)",
					round, i, results[i], errs[i], results[0], errs[0])
			}
		}
	}
}

func TestFuture_CancelDistinctFromReject(t *testing.T) {
	var buf bytes.Buffer
	log := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})

	f, r := New[int](WithLogger(log))
	if !f.Cancel() {
		t.Fatal("Cancel() = false on a pending future")
	}
	if r.Resolve(5) {
		t.Error("Resolve() after Cancel() = true, want false")
	}

	_, err := f.Await(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Await() error = %v, want ErrCancelled", err)
	}
	if f.State() != StateCancelled {
		t.Errorf("State() = %v, want cancelled", f.State())
	}
	if !strings.Contains(buf.String(), "after cancellation") {
		t.Errorf("expected a cancellation warning, log = %q", buf.String())
	}
	if f.Cancel() {
		t.Error("second Cancel() = true, want false")
	}
}

func TestFuture_AwaitContextDoesNotCancel(t *testing.T) {
	f, r := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await() error = %v, want context.Canceled", err)
	}
	if f.State() != StatePending {
		t.Fatalf("State() = %v, want pending after a plain Await timeout", f.State())
	}
	r.Resolve(3)
	if v, _ := f.Await(context.Background()); v != 3 {
		t.Errorf("Await() = %d, want 3", v)
	}
}

func TestFuture_AwaitTimeoutCancels(t *testing.T) {
	f, _ := New[int]()

	_, err := f.AwaitTimeout(10 * time.Millisecond)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("AwaitTimeout() error = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AwaitTimeout() error = %v, want it to wrap DeadlineExceeded", err)
	}
	if f.State() != StateCancelled {
		t.Errorf("State() = %v, want cancelled", f.State())
	}
}

func TestFuture_AwaitTimeoutAfterResolve(t *testing.T) {
	f := Resolved("done")
	v, err := f.AwaitTimeout(time.Millisecond)
	if err != nil || v != "done" {
		t.Errorf("AwaitTimeout() = (%q, %v), want (done, nil)", v, err)
	}
}

func TestFuture_OnSettle(t *testing.T) {
	f, r := New[int]()
	calls := 0
	f.OnSettle(func() { calls++ })
	if calls != 0 {
		t.Fatal("OnSettle ran before settlement")
	}
	r.Resolve(1)
	if calls != 1 {
		t.Fatalf("calls = %d after resolve, want 1", calls)
	}
	f.OnSettle(func() { calls++ })
	if calls != 2 {
		t.Errorf("calls = %d, want OnSettle on a settled future to run immediately", calls)
	}
}

func TestThen(t *testing.T) {
	tests := []struct {
		name      string
		settle    func(*Future[int], *Resolver[int])
		wantState State
		want      string
	}{
		{
			name:      "resolved",
			settle:    func(_ *Future[int], r *Resolver[int]) { r.Resolve(2) },
			wantState: StateResolved,
			want:      "xx",
		},
		{
			name:      "rejected",
			settle:    func(_ *Future[int], r *Resolver[int]) { r.Reject(errors.New("no")) },
			wantState: StateRejected,
		},
		{
			name:      "cancelled",
			settle:    func(f *Future[int], _ *Resolver[int]) { f.Cancel() },
			wantState: StateCancelled,
		},
		{
			name:      "mapper fails",
			settle:    func(_ *Future[int], r *Resolver[int]) { r.Resolve(-1) },
			wantState: StateRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, r := New[int]()
			next := Then(f, func(n int) (string, error) {
				if n < 0 {
					return "", errors.New("negative")
				}
				return strings.Repeat("x", n), nil
			})
			tt.settle(f, r)

			got, _ := next.Await(context.Background())
			if next.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", next.State(), tt.wantState)
			}
			if got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestThen_CancelPropagatesUpstream(t *testing.T) {
	f, r := New[int]()
	next := Then(f, func(n int) (int, error) { return n, nil })

	if !next.Cancel() {
		t.Fatal("Cancel() = false on a pending future")
	}
	if f.State() != StateCancelled {
		t.Errorf("upstream State() = %v, want cancelled", f.State())
	}
	if r.Resolve(1) {
		t.Error("Resolve() = true after the chain was cancelled")
	}
}

func TestStateString(t *testing.T) {
	if StatePending.String() != "pending" || StateCancelled.String() != "cancelled" || State(99).String() != "unknown" {
		t.Error("unexpected State.String output")
	}
}

func TestSettledConstructors(t *testing.T) {
	if got := Resolved(1).State(); got != StateResolved {
		t.Errorf("Resolved().State() = %v, want %v", got, StateResolved)
	}
	f := Rejected[int](errors.New("boom"))
	if got := f.State(); got != StateRejected {
		t.Errorf("Rejected().State() = %v, want %v", got, StateRejected)
	}
	if _, err, done := f.Result(); !done || err == nil {
		t.Errorf("Rejected().Result() = (%v, %v)", err, done)
	}
}
