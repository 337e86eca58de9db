package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"whatshub/internal/constants"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSubmitAndExecute(t *testing.T) {
	q := New(2, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		err := q.Submit(constants.QueueShort, JobFunc{
			Name: "count",
			Fn: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return ran.Load() == 10 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitUnknownLane(t *testing.T) {
	q := New(1, 1, quietLogger())
	err := q.Submit("nope", JobFunc{Name: "x", Fn: func(ctx context.Context) error { return nil }})
	require.Error(t, err)
}

func TestSubmitFullLane(t *testing.T) {
	q := New(1, 1, quietLogger())
	// Not started: jobs accumulate until the buffer fills.
	for i := 0; i < constants.DefaultQueueBuffer; i++ {
		require.NoError(t, q.Submit(constants.QueueLong, JobFunc{
			Name: "filler",
			Fn:   func(ctx context.Context) error { return nil },
		}))
	}
	err := q.Submit(constants.QueueLong, JobFunc{
		Name: "overflow",
		Fn:   func(ctx context.Context) error { return nil },
	})
	require.Error(t, err)
}

func TestFailingJobDoesNotStopWorker(t *testing.T) {
	q := New(1, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	done := make(chan struct{})
	require.NoError(t, q.Submit(constants.QueueShort, JobFunc{
		Name: "boom",
		Fn:   func(ctx context.Context) error { return fmt.Errorf("boom") },
	}))
	require.NoError(t, q.Submit(constants.QueueShort, JobFunc{
		Name: "after",
		Fn: func(ctx context.Context) error {
			close(done)
			return nil
		},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a failing job")
	}
}

func TestPanickingJobDoesNotStopWorker(t *testing.T) {
	q := New(1, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	done := make(chan struct{})
	require.NoError(t, q.Submit(constants.QueueShort, JobFunc{
		Name: "panic",
		Fn:   func(ctx context.Context) error { panic("oh no") },
	}))
	require.NoError(t, q.Submit(constants.QueueShort, JobFunc{
		Name: "after",
		Fn: func(ctx context.Context) error {
			close(done)
			return nil
		},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestStopWaitsForWorkers(t *testing.T) {
	q := New(2, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var mu sync.Mutex
	started := false
	var finished atomic.Bool
	require.NoError(t, q.Submit(constants.QueueShort, JobFunc{
		Name: "slow",
		Fn: func(ctx context.Context) error {
			mu.Lock()
			started = true
			mu.Unlock()
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return started
	}, time.Second, 5*time.Millisecond)

	q.Stop()
	// The executing job ran to completion before Stop returned.
	assert.True(t, finished.Load())
	// Stop again is a no-op.
	q.Stop()
}
