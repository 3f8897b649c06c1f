// Package worker implements the per-feed ingest loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/logging"
	"github.com/JakeFAU/newsgraph/internal/metrics"
)

// Poller lists the current entries of a feed.
type Poller interface {
	Poll(ctx context.Context, src content.Source) ([]content.Entry, error)
}

// Processor resolves a feed's entries sequentially.
type Processor interface {
	ProcessFeed(ctx context.Context, src content.Source, entries []content.Entry) content.RunCounters
}

// Report is emitted once per processed task.
type Report struct {
	RunID    string
	FeedID   string
	Counters content.RunCounters
	Err      error
	Duration time.Duration
}

// Reporter receives task reports. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(Report)
}

// Worker consumes feed tasks and runs them through the pipeline.
type Worker struct {
	queue     content.Queue
	poller    Poller
	processor Processor
	reporter  Reporter
	clock     content.Clock
	logger    *zap.Logger
}

// New constructs a Worker. reporter may be nil.
func New(
	queue content.Queue,
	poller Poller,
	processor Processor,
	reporter Reporter,
	clock content.Clock,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:     queue,
		poller:    poller,
		processor: processor,
		reporter:  reporter,
		clock:     clock,
		logger:    logging.OrNop(logger).Named("worker"),
	}
}

// Run blocks, consuming tasks until the context finishes or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, content.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued feed", zap.String("run_id", task.RunID), zap.String("feed", task.Source.ID))
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task content.FeedTask) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	report := Report{RunID: task.RunID, FeedID: task.Source.ID}

	entries, err := w.poller.Poll(ctx, task.Source)
	if err != nil {
		report.Err = err
		w.logger.Error("feed poll failed",
			zap.String("run_id", task.RunID),
			zap.String("feed", task.Source.ID),
			zap.Error(err),
		)
	} else {
		report.Counters = w.processor.ProcessFeed(ctx, task.Source, entries)
	}
	report.Duration = w.clock.Now().Sub(start)

	w.logger.Info("feed processed",
		zap.String("run_id", task.RunID),
		zap.String("feed", task.Source.ID),
		zap.Int("resolved", report.Counters.Resolved),
		zap.Int("failed", report.Counters.Failed),
		zap.Int("skipped", report.Counters.Skipped),
		zap.Int("errored", report.Counters.Errored),
		zap.Duration("duration", report.Duration),
	)
	if w.reporter != nil {
		w.reporter.Report(report)
	}
}
