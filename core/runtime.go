package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const sessionTaskQueueCapacity = 32

// taskItem is one unit of work for the session loop. All state
// mutation, whether it originates from a UI intent or a transport
// notification, runs as a task so the core stays a single logical
// thread of control.
type taskItem struct {
	name     string
	run      func()
	queuedAt time.Time
}

type sessionRuntime struct {
	baseContext context.Context

	queue   chan taskItem
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started bool
	startMu sync.Mutex
}

func newSessionRuntime() *sessionRuntime {
	return &sessionRuntime{
		baseContext: context.Background(),
		queue:       make(chan taskItem, sessionTaskQueueCapacity),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (runtime *sessionRuntime) configure(ctx context.Context) {
	if runtime == nil {
		return
	}

	runtime.baseContext = ctx
}

func (runtime *sessionRuntime) start() (started bool) {
	if runtime == nil || runtime.isClosed() {
		return false
	}

	runtime.startOnce.Do(func() {
		if runtime.isClosed() {
			return
		}

		started = true
		runtime.startMu.Lock()
		runtime.started = true
		runtime.startMu.Unlock()

		go func() {
			defer close(runtime.done)

			for {
				select {
				case <-runtime.closeCh:
					return
				case task := <-runtime.queue:
					if runtime.isClosed() {
						return
					}
					runtime.runTask(task)
				}
			}
		}()
	})

	return started
}

func (runtime *sessionRuntime) runTask(task taskItem) {
	_, span := tracer.Start(runtime.baseContext, "process session task")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_task.name", task.name),
		attribute.Float64("session_task.queued_time", time.Since(task.queuedAt).Seconds()),
	)

	task.run()
}

func (runtime *sessionRuntime) end() {
	if runtime == nil {
		return
	}

	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
	})
}

func (runtime *sessionRuntime) waitUntilEnded() {
	if runtime == nil {
		return
	}

	runtime.startMu.Lock()
	started := runtime.started
	runtime.startMu.Unlock()

	if started {
		<-runtime.done
	}
}

// post enqueues a task for the session loop. Posting after close is a
// silent no-op; late completions of async work are expected to race a
// teardown and must not block or panic.
func (runtime *sessionRuntime) post(name string, run func()) bool {
	if runtime == nil || runtime.isClosed() {
		return false
	}

	task := taskItem{name: name, run: run, queuedAt: time.Now()}
	select {
	case <-runtime.closeCh:
		return false
	case runtime.queue <- task:
		return true
	}
}

func (runtime *sessionRuntime) isClosed() bool {
	if runtime == nil {
		return false
	}

	select {
	case <-runtime.closeCh:
		return true
	default:
		return false
	}
}
