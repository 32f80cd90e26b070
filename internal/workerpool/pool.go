package workerpool

import (
	"context"
	"runtime/debug"
	"sync"

	"tabscribe/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work submitted to the pool. ctx is cancelled when the
// pool shuts down; long-running pipeline jobs check it between stages.
type Task func(ctx context.Context)

// Pool is a bounded goroutine pool with a fixed-size task queue. Pipeline
// runs for captured sessions and async uploads are executed here so the
// capture bridge and HTTP handlers never block on processing.
type Pool struct {
	maxWorkers int
	queue      chan Task
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc

	// mu orders Submit against StopAccepting and the queue close.
	mu        sync.Mutex
	accepting bool
	closed    bool
}

// New creates a pool with maxWorkers goroutines and a task queue of queueSize.
func New(maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		maxWorkers: maxWorkers,
		queue:      make(chan Task, queueSize),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		accepting:  true,
	}

	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.WithField("workers", maxWorkers).WithField("queueSize", queueSize).Info("worker pool started")
	return p
}

// Context is cancelled once the pool has drained.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Submit enqueues a task. Returns false if the pool is stopped or the queue is full.
// The send never blocks, so holding mu across it is safe.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accepting || p.closed {
		return false
	}

	p.wg.Add(1)
	select {
	case p.queue <- task:
		return true
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected")
		return false
	}
}

// StopAccepting prevents new tasks from being submitted.
func (p *Pool) StopAccepting() {
	p.mu.Lock()
	p.accepting = false
	p.mu.Unlock()
}

// Drain waits for all in-flight and queued tasks to complete, respecting the
// context deadline. It stops accepting new tasks first.
func (p *Pool) Drain(ctx context.Context) {
	p.StopAccepting()
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
	}

	p.cancel()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
}

// Shutdown is StopAccepting followed by Drain.
func (p *Pool) Shutdown(ctx context.Context) {
	p.StopAccepting()
	p.Drain(ctx)
}

func (p *Pool) worker() {
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.runTask(task)
		case <-p.stopChan:
			for {
				select {
				case task, ok := <-p.queue:
					if !ok {
						return
					}
					p.runTask(task)
				default:
					return
				}
			}
		}
	}
}

// runTask executes a single task with panic recovery. wg.Done is called here
// to match the wg.Add in Submit.
func (p *Pool) runTask(task Task) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("stack", string(debug.Stack())).Error("task panicked")
		}
	}()
	task(p.ctx)
}
