package queue

import (
	"context"
	"fmt"
	"sync"

	"whatshub/internal/constants"

	"github.com/sirupsen/logrus"
)

// Job is a unit of background work submitted to a named lane.
type Job interface {
	Kind() string
	Execute(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (j JobFunc) Kind() string                      { return j.Name }
func (j JobFunc) Execute(ctx context.Context) error { return j.Fn(ctx) }

type lane struct {
	name string
	jobs chan Job
}

// Queue runs jobs on named lanes, each with its own worker pool. "short" is
// for latency-sensitive work, "long" for bulk processing. Jobs on different
// lanes, and different jobs on the same lane, have no ordering guarantee.
type Queue struct {
	lanes   map[string]*lane
	workers map[string]int
	logger  *logrus.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// New creates a queue with the standard short/long lanes.
func New(shortWorkers, longWorkers int, logger *logrus.Logger) *Queue {
	if shortWorkers <= 0 {
		shortWorkers = constants.DefaultShortQueueWorkers
	}
	if longWorkers <= 0 {
		longWorkers = constants.DefaultLongQueueWorkers
	}

	q := &Queue{
		lanes:  make(map[string]*lane),
		logger: logger,
	}
	q.lanes[constants.QueueShort] = &lane{name: constants.QueueShort, jobs: make(chan Job, constants.DefaultQueueBuffer)}
	q.lanes[constants.QueueLong] = &lane{name: constants.QueueLong, jobs: make(chan Job, constants.DefaultQueueBuffer)}

	q.workers = map[string]int{
		constants.QueueShort: shortWorkers,
		constants.QueueLong:  longWorkers,
	}
	return q
}

// Start launches the worker pools. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for name, l := range q.lanes {
		for i := 0; i < q.workers[name]; i++ {
			q.wg.Add(1)
			go q.worker(ctx, l)
		}
	}
}

// Submit enqueues a job on the named lane. Returns an error when the lane is
// unknown or its buffer is full; callers on the webhook path treat a full
// buffer as backpressure and still acknowledge the provider.
func (q *Queue) Submit(laneName string, job Job) error {
	l, ok := q.lanes[laneName]
	if !ok {
		return fmt.Errorf("unknown queue lane: %s", laneName)
	}
	select {
	case l.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue lane %s is full", laneName)
	}
}

// Stop waits for jobs already executing to finish, then returns. Jobs still
// buffered in a lane are dropped; webhook payloads survive in the audit log
// and can be replayed.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, l *lane) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-l.jobs:
			q.run(ctx, l.name, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, laneName string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(logrus.Fields{
				"lane":  laneName,
				"job":   job.Kind(),
				"panic": r,
			}).Error("Job panicked")
		}
	}()

	if err := job.Execute(ctx); err != nil {
		q.logger.WithFields(logrus.Fields{
			"lane": laneName,
			"job":  job.Kind(),
		}).WithError(err).Error("Job failed")
	}
}
