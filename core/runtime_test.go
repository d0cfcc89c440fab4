package session

import (
	"sync"
	"testing"
	"time"
)

func TestRuntimeRunsTasksInOrder(t *testing.T) {
	runtime := newSessionRuntime()
	if !runtime.start() {
		t.Fatalf("expected the runtime to start")
	}
	defer func() {
		runtime.end()
		runtime.waitUntilEnded()
	}()

	mu := sync.Mutex{}
	order := []int{}
	done := make(chan struct{})

	for i := range 3 {
		runtime.post("task", func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	runtime.post("final", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tasks to run")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected strict queue order, got %v", order)
	}
}

func TestRuntimePostAfterEndIsNoop(t *testing.T) {
	runtime := newSessionRuntime()
	runtime.start()
	runtime.end()
	runtime.waitUntilEnded()

	if posted := runtime.post("late", func() { t.Fatalf("late task must not run") }); posted {
		t.Fatalf("expected post after end to be rejected")
	}
}

func TestRuntimeEndBeforeStart(t *testing.T) {
	runtime := newSessionRuntime()
	runtime.end()

	if runtime.start() {
		t.Fatalf("expected a closed runtime to refuse starting")
	}
	runtime.waitUntilEnded()

	if !runtime.isClosed() {
		t.Fatalf("expected the runtime to report closed")
	}
}
