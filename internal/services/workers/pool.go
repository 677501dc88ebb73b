package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Task is a unit of work executed by the pool.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// Pool is a fixed-size worker pool for scrape runs. Sources are dispatched
// through the pool so that at most Workers scrapes execute concurrently,
// regardless of how many sources come due on one tick.
type Pool struct {
	size    int
	tasks   chan Task
	logger  arbor.ILogger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPool creates a worker pool with the given concurrency.
func NewPool(size int, logger arbor.ILogger) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		size:   size,
		tasks:  make(chan Task, size*4),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("Worker pool already running")
		return
	}
	p.running = true

	p.logger.Info().Int("workers", p.size).Msg("Starting worker pool")
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains in-flight work and shuts the pool down. Queued tasks that
// have not started are abandoned.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info().Msg("Stopping worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

// Submit enqueues a task. It returns an error instead of blocking when the
// queue is full or the pool is stopped, so a slow run never stalls the
// scheduler tick.
func (p *Pool) Submit(task Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is stopped")
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("worker pool queue is full")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			p.logger.Debug().
				Int("worker", id).
				Str("task", task.Name).
				Msg("Worker picked up task")
			task.Run(p.ctx)
		}
	}
}
