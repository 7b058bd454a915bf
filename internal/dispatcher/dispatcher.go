// Package dispatcher manages worker fan-out over the decompile job queue.
package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
	"github.com/JakeFAU/sb2gs-service/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers. It implements
// scratch.Decompiler so the pipeline can submit jobs without knowing about
// the pool.
type Dispatcher struct {
	queue   scratch.JobQueue
	workers []*worker.Worker
	seq     atomic.Uint64
}

// New creates a Dispatcher.
func New(queue scratch.JobQueue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// NewPool creates a Dispatcher with size workers, each running decompiler.
func NewPool(queue scratch.JobQueue, decompiler scratch.Decompiler, size int, logger *zap.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*worker.Worker, 0, size)
	for i := range size {
		workers = append(workers, worker.New(i+1, queue, decompiler, logger))
	}
	return New(queue, workers)
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job scratch.DecompileJob) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Decompile submits req to the pool and waits for a worker to finish it. If
// ctx ends first the wait is abandoned; a worker that later dequeues the job
// skips it.
func (d *Dispatcher) Decompile(ctx context.Context, req scratch.DecompileRequest) error {
	result := make(chan error, 1)
	job := scratch.DecompileJob{
		ID:      "decompile-" + strconv.FormatUint(d.seq.Add(1), 10),
		Ctx:     ctx,
		Request: req,
		Result:  result,
	}
	if err := d.Enqueue(ctx, job); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("decompile wait canceled: %w", ctx.Err())
	}
}
