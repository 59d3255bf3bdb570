package api_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workload-engine/api"
	"github.com/warp/workload-engine/logging"
	"github.com/warp/workload-engine/workload"
	"github.com/warp/workload-engine/workload/store"
)

// blockingPass holds every Run until release is closed.
type blockingPass struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPass() *blockingPass {
	return &blockingPass{started: make(chan struct{}), release: make(chan struct{})}
}

func (p *blockingPass) Run(ctx context.Context) workload.RecalculationRun {
	p.calls.Add(1)
	p.once.Do(func() { close(p.started) })
	<-p.release
	return workload.RecalculationRun{
		ID:        "run-1",
		Today:     workload.MustParseDate("2024-01-05"),
		Status:    workload.RunCompleted,
		StartedAt: time.Now().UTC(),
	}
}

type countingPass struct{ calls atomic.Int32 }

func (p *countingPass) Run(ctx context.Context) workload.RecalculationRun {
	n := p.calls.Add(1)
	return workload.RecalculationRun{
		ID:        fmt.Sprintf("run-%d", n),
		Status:    workload.RunCompleted,
		StartedAt: time.Now().UTC().Add(time.Duration(n) * time.Millisecond),
	}
}

type panickingPass struct{}

func (panickingPass) Run(ctx context.Context) workload.RecalculationRun {
	panic("store exploded")
}

func TestScheduler_ConcurrentTriggersShareOnePass(t *testing.T) {
	// GIVEN: A pass that blocks until released
	// WHEN: Two callers trigger while it is running
	// THEN: Only one pass runs and the second caller shares its result

	pass := newBlockingPass()
	rs := api.NewRecalculationScheduler(pass, store.NewMemory(), logging.Discard())

	type result struct {
		run    workload.RecalculationRun
		shared bool
	}
	results := make(chan result, 2)
	trigger := func() {
		run, shared := rs.RunNow(context.Background())
		results <- result{run, shared}
	}

	go trigger()
	<-pass.started
	go trigger()
	// Give the second caller time to join the in-flight pass.
	time.Sleep(50 * time.Millisecond)
	close(pass.release)

	first, second := <-results, <-results
	assert.Equal(t, int32(1), pass.calls.Load())
	assert.Equal(t, "run-1", first.run.ID)
	assert.Equal(t, "run-1", second.run.ID)
	assert.True(t, first.shared || second.shared)
}

func TestScheduler_RecordsRuns(t *testing.T) {
	runs := store.NewMemory()
	pass := &countingPass{}
	rs := api.NewRecalculationScheduler(pass, runs, logging.Discard())

	_, ok := rs.LastRun()
	assert.False(t, ok)

	first, shared := rs.RunNow(context.Background())
	assert.False(t, shared)
	rs.RunNow(context.Background())

	last, ok := rs.LastRun()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, last.ID)
	assert.Equal(t, last.StartedAt.Add(rs.Interval), rs.NextRunTime())

	saved, err := runs.ListRecalculationRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	pass := &countingPass{}
	rs := api.NewRecalculationScheduler(pass, nil, logging.Discard())
	rs.Interval = time.Hour

	rs.Start()
	require.Eventually(t, func() bool { return pass.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	rs.Start() // already running
	rs.Stop()
	rs.Stop()

	assert.Equal(t, int32(1), pass.calls.Load())
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	pass := &countingPass{}
	rs := api.NewRecalculationScheduler(pass, nil, logging.Discard())
	rs.Enabled = false

	rs.Start()
	time.Sleep(20 * time.Millisecond)
	rs.Stop()

	assert.Equal(t, int32(0), pass.calls.Load())
}

func TestScheduler_PanicBecomesFailedRun(t *testing.T) {
	rs := api.NewRecalculationScheduler(panickingPass{}, store.NewMemory(), logging.Discard())

	run, _ := rs.RunNow(context.Background())
	assert.Equal(t, workload.RunCompletedWithErrors, run.Status)
	assert.Equal(t, 1, run.Failures)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "store exploded")

	_, ok := rs.LastRun()
	assert.False(t, ok)
}
