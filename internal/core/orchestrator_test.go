package core_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/core"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/extract"
	"github.com/libriscan/libriscan/internal/metrics"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/repository/repotest"
)

// countingBackend serves the embedded fixture, optionally parking each call on gate.
type countingBackend struct {
	inner   *extract.Dummy
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
	err     error
}

func (b *countingBackend) Service() constants.CloudService { return constants.ServiceTest }

func (b *countingBackend) Fetch(ctx context.Context, pc *entity.PageContext) ([]extract.Block, error) {
	b.calls.Add(1)
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.gate != nil {
		<-b.gate
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.inner.Fetch(ctx, pc)
}

// holdingDispatcher keeps jobs instead of running them.
type holdingDispatcher struct {
	mu   sync.Mutex
	jobs []*entity.ExtractJob
	err  error
}

func (d *holdingDispatcher) Dispatch(_ context.Context, job *entity.ExtractJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *holdingDispatcher) held() []*entity.ExtractJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*entity.ExtractJob(nil), d.jobs...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	db      *repository.DB
	fx      *repotest.Fixture
	backend *countingBackend
	orch    *core.Orchestrator
	blocks  repository.TextBlockRepository
	jobs    repository.ExtractJobRepository
	leases  repository.LeaseStore
	clock   *clock
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, service constants.CloudService) *harness {
	t.Helper()
	db := repotest.Open(t)
	log := repotest.Logger()
	dummy, err := extract.NewDummy("", log)
	require.NoError(t, err)

	h := &harness{
		db:      db,
		fx:      repotest.Seed(t, db, "acme", service),
		backend: &countingBackend{inner: dummy},
		blocks:  repository.NewTextBlockRepository(db, log),
		jobs:    repository.NewExtractJobRepository(db, log),
		leases:  repository.NewLeaseStore(db, log),
		clock:   &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.orch = h.newOrchestrator()
	return h
}

func (h *harness) newOrchestrator() *core.Orchestrator {
	log := repotest.Logger()
	ex := extract.NewExtractor(extract.NewRegistry(h.backend), h.db, h.blocks, nil, 0, log)
	return core.NewOrchestrator(log,
		repository.NewPageRepository(h.db, log), h.blocks, h.jobs, h.leases, ex,
		core.WithClock(h.clock.Now), core.WithMetrics(h.metrics), core.WithLeaseTimeout(10*time.Minute))
}

func (h *harness) lease(t *testing.T) *entity.Lease {
	t.Helper()
	l, err := h.leases.Get(context.Background(), repository.LeaseKey(h.fx.Page.ID))
	require.NoError(t, err)
	return l
}

func (h *harness) wordCount(t *testing.T) int {
	t.Helper()
	n, err := h.blocks.CountByPage(context.Background(), h.fx.Page.ID)
	require.NoError(t, err)
	return n
}

func TestExtractNow_Completes(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx := context.Background()

	st, err := h.orch.ExtractNow(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateCompleted, st.State)
	assert.Len(t, st.Words, 30)
	require.NotNil(t, st.Job)
	assert.Equal(t, constants.ServiceTest, st.Job.Service)
	assert.Equal(t, constants.JobStatusDone, st.Job.Status)
	assert.Equal(t, 30, st.Job.BlockCount)
	assert.Nil(t, h.lease(t))
	assert.EqualValues(t, 1, h.backend.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ExtractionsTotal.WithLabelValues("Test", metrics.OutcomeSuccess)))
}

func TestRequestExtraction_SecondRequestWhileInFlightIsRejected(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	h.backend.entered = make(chan struct{}, 1)
	h.backend.gate = make(chan struct{})
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		_, err := h.orch.ExtractNow(ctx, h.fx.Path())
		firstErr <- err
	}()
	<-h.backend.entered

	st, err := h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateInFlight, st.State)

	ok, err := h.orch.CanExtract(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.orch.RequestExtraction(ctx, h.fx.Path())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExtractionInFlight)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, "Text extraction is already in progress", common.PublicMessage(err))

	close(h.backend.gate)
	require.NoError(t, <-firstErr)
	assert.EqualValues(t, 1, h.backend.calls.Load())
	assert.Equal(t, 30, h.wordCount(t))
}

func TestRequestExtraction_ConcurrentRequestsCallBackendOnce(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.orch.ExtractNow(ctx, h.fx.Path())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, core.ErrExtractionInFlight) || errors.Is(err, core.ErrCannotExtract), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, h.backend.calls.Load())
	assert.Equal(t, 30, h.wordCount(t))
}

func TestRequestExtraction_CannotExtract(t *testing.T) {
	t.Run("no service configured", func(t *testing.T) {
		h := newHarness(t, "")
		_, err := h.orch.RequestExtraction(context.Background(), h.fx.Path())
		assert.ErrorIs(t, err, core.ErrCannotExtract)
		assert.ErrorIs(t, err, common.ErrPrecondition)
		assert.Nil(t, h.lease(t))
	})

	t.Run("service without backend", func(t *testing.T) {
		h := newHarness(t, constants.ServiceAWS)
		_, err := h.orch.RequestExtraction(context.Background(), h.fx.Path())
		assert.ErrorIs(t, err, core.ErrCannotExtract)
	})

	t.Run("page already has words", func(t *testing.T) {
		h := newHarness(t, constants.ServiceTest)
		ctx := context.Background()
		_, err := h.orch.ExtractNow(ctx, h.fx.Path())
		require.NoError(t, err)

		_, err = h.orch.RequestExtraction(ctx, h.fx.Path())
		assert.ErrorIs(t, err, core.ErrCannotExtract)
		assert.Equal(t, "Page already has text", common.PublicMessage(err))

		ok, err := h.orch.CanExtract(ctx, h.fx.Path())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.EqualValues(t, 1, h.backend.calls.Load())
	})

	t.Run("unknown page", func(t *testing.T) {
		h := newHarness(t, constants.ServiceTest)
		path := h.fx.Path()
		path.Organization = "someone-else"
		_, err := h.orch.RequestExtraction(context.Background(), path)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestRun_BackendFailureLeavesPageExtractable(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	h.backend.err = errors.New("connection reset")
	ctx := context.Background()

	st, err := h.orch.ExtractNow(ctx, h.fx.Path())
	require.NoError(t, err, "failures are reported through Status, not to the requester")

	assert.Equal(t, 0, h.wordCount(t))
	assert.Nil(t, h.lease(t))
	assert.Equal(t, constants.StateFailed, st.State)
	assert.Contains(t, st.Error, "connection reset")

	ok, err := h.orch.CanExtract(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.True(t, ok)

	h.backend.err = nil
	_, err = h.orch.ExtractNow(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, 30, h.wordCount(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ExtractionsTotal.WithLabelValues("Test", metrics.OutcomeError)))
}

func TestRun_QueuedJobThroughDispatcher(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	d := &holdingDispatcher{}
	h.orch.SetDispatcher(d)
	ctx := context.Background()

	job, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)
	require.Len(t, d.held(), 1)
	assert.Equal(t, constants.JobStatusQueued, job.Status)
	assert.EqualValues(t, 0, h.backend.calls.Load())

	st, err := h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateInFlight, st.State)
	assert.Empty(t, st.Words)

	require.NoError(t, h.orch.Run(ctx, job.ID))
	require.NoError(t, h.orch.Run(ctx, job.ID), "finished jobs are skipped")
	assert.EqualValues(t, 1, h.backend.calls.Load())

	st, err = h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateCompleted, st.State)
	assert.Nil(t, h.lease(t))
}

func TestRequestExtraction_DispatchErrorReleasesLease(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	h.orch.SetDispatcher(&holdingDispatcher{err: errors.New("queue is shutting down")})
	ctx := context.Background()

	_, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.Error(t, err)
	assert.Nil(t, h.lease(t))

	latest, err := h.jobs.Latest(ctx, h.fx.Page.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, constants.JobStatusFailed, latest.Status)
}

func TestRequestExtraction_ReclaimsStaleLease(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	d := &holdingDispatcher{}
	h.orch.SetDispatcher(d)
	ctx := context.Background()

	first, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	_, err = h.orch.RequestExtraction(ctx, h.fx.Path())
	assert.ErrorIs(t, err, core.ErrExtractionInFlight)

	h.clock.Advance(6 * time.Minute)
	second, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := h.jobs.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, old.Status)
	require.NotNil(t, old.ErrorMessage)
	assert.Equal(t, "Extraction timed out", *old.ErrorMessage)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.LeasesReclaimed.WithLabelValues("request")))

	// The reclaimed job no longer owns the page.
	require.NoError(t, h.orch.Run(ctx, first.ID))
	assert.EqualValues(t, 0, h.backend.calls.Load())
	require.NoError(t, h.orch.Run(ctx, second.ID))
	assert.Equal(t, 30, h.wordCount(t))
}

func TestSweep_ClearsOnlyStaleLeases(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	other := repotest.AddPage(t, h.db, h.fx, 2)
	h.orch.SetDispatcher(&holdingDispatcher{})
	ctx := context.Background()

	job, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)

	h.clock.Advance(8 * time.Minute)
	otherPath := h.fx.Path()
	otherPath.Page = other.Number
	_, err = h.orch.RequestExtraction(ctx, otherPath)
	require.NoError(t, err)

	n, err := h.orch.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(3 * time.Minute)
	n, err = h.orch.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, h.lease(t))

	st, err := h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateFailed, st.State)
	assert.Equal(t, "Extraction timed out", st.Error)
	assert.Equal(t, job.ID, st.Job.ID)

	st, err = h.orch.Status(ctx, otherPath)
	require.NoError(t, err)
	assert.Equal(t, constants.StateInFlight, st.State)

	ok, err := h.orch.CanExtract(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatus_NotStartedAndUnexpectedStop(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx := context.Background()

	st, err := h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateNotStarted, st.State)
	assert.Nil(t, st.Job)

	// A job left open without its lease means the worker died.
	_, err = h.jobs.Enqueue(ctx, h.fx.Page.ID, constants.ServiceTest)
	require.NoError(t, err)
	st, err = h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateFailed, st.State)
	assert.Equal(t, "Text extraction has unexpectedly stopped. See the system logs for details.", st.Error)
}

func TestRecover_RequeuesQueuedAndFailsRunning(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	other := repotest.AddPage(t, h.db, h.fx, 2)
	h.orch.SetDispatcher(&holdingDispatcher{})
	ctx := context.Background()

	queued, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)
	otherPath := h.fx.Path()
	otherPath.Page = other.Number
	running, err := h.orch.RequestExtraction(ctx, otherPath)
	require.NoError(t, err)
	require.NoError(t, h.jobs.Start(ctx, running.ID))

	restarted := h.newOrchestrator()
	d := &holdingDispatcher{}
	restarted.SetDispatcher(d)

	n, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, d.held(), 1)
	assert.Equal(t, queued.ID, d.held()[0].ID)

	got, err := h.jobs.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	l, err := h.leases.Get(ctx, repository.LeaseKey(other.ID))
	require.NoError(t, err)
	assert.Nil(t, l)

	require.NoError(t, restarted.Run(ctx, queued.ID))
	assert.Equal(t, 30, h.wordCount(t))
}

func TestRunSweeper_StopsWithContext(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.orch.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// runningDispatcher runs each job on the given orchestrator in its own goroutine.
type runningDispatcher struct {
	orch *core.Orchestrator
	wg   sync.WaitGroup
}

func (d *runningDispatcher) Dispatch(ctx context.Context, job *entity.ExtractJob) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.orch.Run(context.WithoutCancel(ctx), job.ID)
	}()
	return nil
}

func TestRequestExtraction_WithoutDispatcherStaysQueued(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx := context.Background()

	job, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, job.Status)
	assert.EqualValues(t, 0, h.backend.calls.Load())
	assert.NotNil(t, h.lease(t))

	st, err := h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateInFlight, st.State)

	n, err := h.orch.ClaimQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing claims without a dispatcher")
}

func TestClaimQueued_RunsJobsQueuedElsewhere(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx := context.Background()

	queued, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)

	worker := h.newOrchestrator()
	d := &runningDispatcher{orch: worker}
	worker.SetDispatcher(d)

	n, err := worker.ClaimQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	d.wg.Wait()

	st, err := h.orch.Status(ctx, h.fx.Path())
	require.NoError(t, err)
	assert.Equal(t, constants.StateCompleted, st.State)
	assert.Equal(t, queued.ID, st.Job.ID)
	assert.Equal(t, constants.JobStatusDone, st.Job.Status)
	assert.Nil(t, h.lease(t))
	assert.EqualValues(t, 1, h.backend.calls.Load())

	n, err = worker.ClaimQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClaimQueued_SkipsJobsAlreadyDispatched(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	d := &holdingDispatcher{}
	h.orch.SetDispatcher(d)
	ctx := context.Background()

	job, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)
	require.Len(t, d.held(), 1)

	n, err := h.orch.ClaimQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, d.held(), 1)

	require.NoError(t, h.orch.Run(ctx, job.ID))
	assert.Equal(t, 30, h.wordCount(t))
}

func TestRun_SecondRunnerLeavesLeaseAlone(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	h.backend.entered = make(chan struct{}, 1)
	h.backend.gate = make(chan struct{})
	ctx := context.Background()

	job, err := h.orch.RequestExtraction(ctx, h.fx.Path())
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- h.orch.Run(ctx, job.ID) }()
	<-h.backend.entered

	other := h.newOrchestrator()
	require.NoError(t, other.Run(ctx, job.ID))
	assert.NotNil(t, h.lease(t), "the running job still owns the page")

	close(h.backend.gate)
	require.NoError(t, <-first)
	assert.EqualValues(t, 1, h.backend.calls.Load())
	assert.Nil(t, h.lease(t))
}

func TestClaimQueued_FailsJobsWithoutLease(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	h.orch.SetDispatcher(&holdingDispatcher{})
	ctx := context.Background()

	job, err := h.jobs.Enqueue(ctx, h.fx.Page.ID, constants.ServiceTest)
	require.NoError(t, err)

	n, err := h.orch.ClaimQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := h.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
}

func TestRunClaimer_StopsWithContext(t *testing.T) {
	h := newHarness(t, constants.ServiceTest)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.orch.RunClaimer(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("claimer did not stop")
	}
}
