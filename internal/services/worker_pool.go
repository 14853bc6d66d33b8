package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// WorkerPool runs submitted tasks on a fixed set of goroutines. Execution
// requests return immediately; the pool owns the asynchronous run.
type WorkerPool struct {
	tasks    chan func()
	wg       sync.WaitGroup
	logger   *logrus.Logger
	stopOnce sync.Once
}

func NewWorkerPool(workers, queueSize int, logger *logrus.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = logrus.New()
	}
	p := &WorkerPool{
		tasks:  make(chan func(), queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Errorf("worker %d: task panic: %v", id, r)
				}
			}()
			task()
		}()
	}
}

// Submit enqueues a task without blocking. A full queue is reported to the
// caller instead of stalling the request path.
func (p *WorkerPool) Submit(task func()) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("execution queue full")
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones, bounded by ctx.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.tasks) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
