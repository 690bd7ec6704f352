package systems

import (
	"errors"
	"sync"

	"github.com/spaghettifunk/anima-gal/engine/core"
)

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
var ErrJobSystemShutdown = errors.New("job system already shut down")

/**
 * @brief One unit of work. OnComplete or OnFailure runs on the worker after
 * Run returns, OnCompletionCallback runs in both cases.
 */
type JobTask struct {
	Name                 string
	Run                  func() error
	OnComplete           func()
	OnFailure            func(err error)
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	err := job.Run()
	if err != nil {
		core.LogError("job `%s` failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete()
	}
	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Shuts the job system down. Queued jobs still run.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return ErrJobSystemShutdown
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return errors.New("job has nothing to run")
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemShutdown
	}
	js.jobQueue <- jt
	return nil
}

// RunAll submits every task and waits for all of them. The returned error
// joins the failures.
func (js *JobSystem) RunAll(tasks []JobTask) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for _, task := range tasks {
		task := task
		onFailure := task.OnFailure
		task.OnFailure = func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			if onFailure != nil {
				onFailure(err)
			}
		}
		done := task.OnCompletionCallback
		task.OnCompletionCallback = func() {
			if done != nil {
				done()
			}
			wg.Done()
		}
		wg.Add(1)
		if err := js.Submit(task); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
