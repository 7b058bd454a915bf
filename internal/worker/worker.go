// Package worker implements the decompile job execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/metrics"
	"github.com/JakeFAU/sb2gs-service/internal/queue/memory"
	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// Worker consumes queued jobs and runs them through the decompiler.
type Worker struct {
	id         int
	queue      scratch.JobQueue
	decompiler scratch.Decompiler
	logger     *zap.Logger
}

// New constructs a Worker.
func New(id int, queue scratch.JobQueue, decompiler scratch.Decompiler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:         id,
		queue:      queue,
		decompiler: decompiler,
		logger:     logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", job.ID))
		w.processJob(job)
	}
}

func (w *Worker) processJob(job scratch.DecompileJob) {
	jobCtx := job.Ctx
	if jobCtx == nil {
		jobCtx = context.Background()
	}
	if err := jobCtx.Err(); err != nil {
		w.logger.Debug("skipping abandoned job", zap.String("job_id", job.ID), zap.Error(err))
		w.reply(job, fmt.Errorf("job abandoned before start: %w", err))
		return
	}
	if w.decompiler == nil {
		w.logger.Error("no decompiler configured", zap.String("job_id", job.ID))
		w.reply(job, scratch.NewError(scratch.KindInternal, "", errors.New("no decompiler configured")))
		return
	}

	metrics.IncActiveDecompiles()
	start := time.Now()
	err := w.decompiler.Decompile(jobCtx, job.Request)
	metrics.DecActiveDecompiles()

	if err != nil {
		w.logger.Warn("decompile failed",
			zap.String("job_id", job.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	} else {
		w.logger.Debug("decompile succeeded",
			zap.String("job_id", job.ID),
			zap.Duration("duration", time.Since(start)),
		)
	}
	w.reply(job, err)
}

// reply never blocks; submitters allocate a one-slot result channel.
func (w *Worker) reply(job scratch.DecompileJob, err error) {
	if job.Result == nil {
		return
	}
	select {
	case job.Result <- err:
	default:
		w.logger.Warn("result channel full, dropping result", zap.String("job_id", job.ID))
	}
}
