package systems

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestNewJobSystemValidation(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("NewJobSystem(0) error = %v", err)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("NewJobSystem(1, -1) error = %v", err)
	}
}

func TestRunAll(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	if err != nil {
		t.Fatalf("NewJobSystem() error = %v", err)
	}
	defer js.Shutdown()

	boom := errors.New("boom")
	var ran, completed, failed atomic.Int32
	var tasks []JobTask
	for i := 0; i < 16; i++ {
		i := i
		tasks = append(tasks, JobTask{
			Name: "task",
			Run: func() error {
				ran.Add(1)
				if i%4 == 0 {
					return boom
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure:  func(error) { failed.Add(1) },
		})
	}
	err = js.RunAll(tasks)
	if !errors.Is(err, boom) {
		t.Fatalf("RunAll() error = %v, want %v", err, boom)
	}
	if ran.Load() != 16 || completed.Load() != 12 || failed.Load() != 4 {
		t.Fatalf("ran %d, completed %d, failed %d", ran.Load(), completed.Load(), failed.Load())
	}
}

func TestShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	if err != nil {
		t.Fatalf("NewJobSystem() error = %v", err)
	}
	var done atomic.Bool
	if err := js.Submit(JobTask{Run: func() error { return nil }, OnCompletionCallback: func() { done.Store(true) }}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := js.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !done.Load() {
		t.Fatalf("queued job did not run before Shutdown returned")
	}
	if err := js.Submit(JobTask{Run: func() error { return nil }}); !errors.Is(err, ErrJobSystemShutdown) {
		t.Fatalf("Submit() after Shutdown() error = %v", err)
	}
	if err := js.Shutdown(); !errors.Is(err, ErrJobSystemShutdown) {
		t.Fatalf("second Shutdown() error = %v", err)
	}
	if err := js.RunAll([]JobTask{{Run: func() error { return nil }}}); !errors.Is(err, ErrJobSystemShutdown) {
		t.Fatalf("RunAll() after Shutdown() error = %v", err)
	}
}
