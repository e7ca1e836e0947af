package rpc

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// PanicHandler is called when a task panics.
type PanicHandler func(key string, recovered any, stack []byte)

// executor runs tasks on a bounded pool of workers while keeping tasks that
// share a key strictly ordered. A key is only ever held by one worker at a
// time, so tasks for different keys run concurrently and tasks for the same
// key run one after another in submission order.
type executor struct {
	workers      int
	panicHandler PanicHandler

	mu      sync.Mutex
	cond    *sync.Cond
	lanes   map[string]*lane
	ready   []*lane
	running bool
	stopped bool
	wg      sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// lane is the FIFO of tasks for one key.
type lane struct {
	key       string
	tasks     []func()
	scheduled bool
}

func newExecutor(workers int, onPanic PanicHandler) *executor {
	if workers < 1 {
		workers = 1
	}
	e := &executor{
		workers:      workers,
		panicHandler: onPanic,
		lanes:        make(map[string]*lane),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// start launches the workers. Tasks submitted earlier are kept and run.
func (e *executor) start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.stopped {
		return
	}
	e.running = true
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// submit queues task behind earlier tasks with the same key.
func (e *executor) submit(key string, task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrClosed
	}
	l, ok := e.lanes[key]
	if !ok {
		l = &lane{key: key}
		e.lanes[key] = l
	}
	l.tasks = append(l.tasks, task)
	e.submitted.Add(1)
	if !l.scheduled {
		l.scheduled = true
		e.ready = append(e.ready, l)
		e.cond.Signal()
	}
	return nil
}

func (e *executor) worker() {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		for len(e.ready) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.stopped {
			e.mu.Unlock()
			return
		}
		l := e.ready[0]
		e.ready[0] = nil
		e.ready = e.ready[1:]
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		e.mu.Unlock()

		e.run(l.key, task)

		e.mu.Lock()
		if len(l.tasks) > 0 {
			e.ready = append(e.ready, l)
			e.cond.Signal()
		} else {
			l.scheduled = false
			delete(e.lanes, l.key)
		}
		e.mu.Unlock()
	}
}

func (e *executor) run(key string, task func()) {
	defer func() {
		e.completed.Add(1)
		if r := recover(); r != nil {
			e.panicked.Add(1)
			if e.panicHandler != nil {
				e.panicHandler(key, r, debug.Stack())
			}
		}
	}()
	task()
}

// halt discards queued tasks and tells workers to exit after their current
// task. It does not block, so it is safe to call from inside a task.
func (e *executor) halt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	e.ready = nil
	e.lanes = make(map[string]*lane)
	e.cond.Broadcast()
}

// wait blocks until all workers have exited or ctx is done.
func (e *executor) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// executorStats is a snapshot of executor counters.
type executorStats struct {
	Submitted uint64
	Completed uint64
	Panicked  uint64
}

func (e *executor) stats() executorStats {
	return executorStats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Panicked:  e.panicked.Load(),
	}
}
