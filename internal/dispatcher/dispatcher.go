// Package dispatcher manages worker fan-out over the feed queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/worker"
)

// Runner is a worker loop.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   content.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue content.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one has returned, which happens when
// the context finishes or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Runner) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task content.FeedTask) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Tally aggregates worker reports for one run.
type Tally struct {
	mu       sync.Mutex
	totals   content.RunCounters
	feeds    int
	failures map[string]error
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{failures: make(map[string]error)}
}

// Report implements worker.Reporter.
func (t *Tally) Report(r worker.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feeds++
	t.totals.Add(r.Counters)
	if r.Err != nil {
		t.failures[r.FeedID] = r.Err
	}
}

// Summary is the outcome of one ingest run.
type Summary struct {
	RunID       string              `json:"run_id"`
	Feeds       int                 `json:"feeds"`
	FailedFeeds map[string]string   `json:"failed_feeds,omitempty"`
	Counters    content.RunCounters `json:"counters"`
}

// Summary snapshots the tally.
func (t *Tally) Summary(runID string) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{RunID: runID, Feeds: t.feeds, Counters: t.totals}
	if len(t.failures) > 0 {
		s.FailedFeeds = make(map[string]string, len(t.failures))
		for id, err := range t.failures {
			s.FailedFeeds[id] = err.Error()
		}
	}
	return s
}
