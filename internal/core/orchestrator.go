package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/metrics"
	"github.com/libriscan/libriscan/internal/repository"
)

const (
	// DefaultLeaseTimeout is how long an extraction may hold its page before it is reclaimed.
	DefaultLeaseTimeout = 10 * time.Minute

	msgTimedOut          = "Extraction timed out"
	msgUnexpectedlyStop  = "Text extraction has unexpectedly stopped. See the system logs for details."
	msgInterrupted       = "Extraction was interrupted by a restart"
	msgLeaseLost         = "Extraction lease was reclaimed before the job ran"
	msgAlreadyExtracted  = "Page already has text"
	msgExtractionPending = "Text extraction is already in progress"
)

var (
	// ErrExtractionInFlight is returned when the page already has a live lease.
	ErrExtractionInFlight = fmt.Errorf("%w: extraction in flight", common.ErrConflict)
	// ErrCannotExtract is returned when the page has words or no backend.
	ErrCannotExtract = fmt.Errorf("%w: page cannot be extracted", common.ErrPrecondition)
)

// WordExtractor turns a page into persisted text blocks.
type WordExtractor interface {
	CanServe(pc *entity.PageContext) bool
	GetWords(ctx context.Context, pc *entity.PageContext) ([]*entity.TextBlock, error)
}

// Dispatcher hands a queued job to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *entity.ExtractJob) error
}

// Status is the polling view of a page's extraction.
type Status struct {
	State constants.ExtractionState `json:"state"`
	Words []*entity.TextBlock       `json:"words,omitempty"`
	Job   *entity.ExtractJob        `json:"job,omitempty"`
	Error string                    `json:"error,omitempty"`
}

// Orchestrator drives the per-page extraction state machine. A page is in flight
// while its lease exists; the lease is taken before any backend call and released
// when the job finishes, fails, or is reclaimed after the lease timeout.
type Orchestrator struct {
	logger       *slog.Logger
	pages        repository.PageRepository
	blocks       repository.TextBlockRepository
	jobs         repository.ExtractJobRepository
	leases       repository.LeaseStore
	extractor    WordExtractor
	metrics      *metrics.Metrics
	leaseTimeout time.Duration
	now          func() time.Time

	mu         sync.RWMutex
	dispatcher Dispatcher
	// claimed holds jobs handed to the dispatcher that have not finished Run.
	claimed map[uuid.UUID]struct{}
}

type Option func(*Orchestrator)

func WithLeaseTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.leaseTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(
	logger *slog.Logger,
	pages repository.PageRepository,
	blocks repository.TextBlockRepository,
	jobs repository.ExtractJobRepository,
	leases repository.LeaseStore,
	extractor WordExtractor,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		logger:       logger,
		pages:        pages,
		blocks:       blocks,
		jobs:         jobs,
		leases:       leases,
		extractor:    extractor,
		leaseTimeout: DefaultLeaseTimeout,
		now:          time.Now,
		claimed:      make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetDispatcher installs the job runner. Without one, RequestExtraction leaves the
// job QUEUED for a process that has a dispatcher to pick up with ClaimQueued.
func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatcher = d
}

func (o *Orchestrator) dispatch(ctx context.Context, job *entity.ExtractJob) error {
	o.mu.Lock()
	d := o.dispatcher
	if d == nil {
		o.mu.Unlock()
		o.logger.Info("extraction left queued for a worker", "job_id", job.ID, "page_id", job.PageID)
		return nil
	}
	o.claimed[job.ID] = struct{}{}
	o.mu.Unlock()

	if err := d.Dispatch(ctx, job); err != nil {
		o.unclaim(job.ID)
		return err
	}
	return nil
}

func (o *Orchestrator) unclaim(jobID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.claimed, jobID)
}

func (o *Orchestrator) isClaimed(jobID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.claimed[jobID]
	return ok
}

func (o *Orchestrator) hasDispatcher() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dispatcher != nil
}

func (o *Orchestrator) inline(ctx context.Context, job *entity.ExtractJob) error {
	_ = o.Run(ctx, job.ID)
	return nil
}

// CanExtract reports whether the page has no words, a backend, and no live lease.
func (o *Orchestrator) CanExtract(ctx context.Context, path entity.OwnershipPath) (bool, error) {
	pc, err := o.pages.Resolve(ctx, path)
	if err != nil {
		return false, err
	}
	if err := o.checkExtractable(ctx, pc); err != nil {
		if errors.Is(err, ErrCannotExtract) {
			return false, nil
		}
		return false, err
	}
	lease, err := o.leases.Get(ctx, repository.LeaseKey(pc.Page.ID))
	if err != nil {
		return false, err
	}
	return lease == nil, nil
}

func (o *Orchestrator) checkExtractable(ctx context.Context, pc *entity.PageContext) error {
	n, err := o.blocks.CountByPage(ctx, pc.Page.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return common.Precondition(msgAlreadyExtracted, ErrCannotExtract)
	}
	if !o.extractor.CanServe(pc) {
		return common.Precondition("No extraction service is configured for this organization", ErrCannotExtract)
	}
	return nil
}

// RequestExtraction takes the page lease and queues a job. It returns as soon as the
// job is handed to the dispatcher, or stored QUEUED when there is none; completion is
// observed through Status.
func (o *Orchestrator) RequestExtraction(ctx context.Context, path entity.OwnershipPath) (*entity.ExtractJob, error) {
	return o.request(ctx, path, o.dispatch)
}

// ExtractNow runs the extraction in the caller's goroutine and reports the outcome.
func (o *Orchestrator) ExtractNow(ctx context.Context, path entity.OwnershipPath) (*Status, error) {
	if _, err := o.request(ctx, path, o.inline); err != nil {
		return nil, err
	}
	return o.Status(ctx, path)
}

func (o *Orchestrator) request(ctx context.Context, path entity.OwnershipPath, dispatch func(context.Context, *entity.ExtractJob) error) (*entity.ExtractJob, error) {
	pc, err := o.pages.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := o.checkExtractable(ctx, pc); err != nil {
		return nil, err
	}

	pageID := pc.Page.ID
	key := repository.LeaseKey(pageID)
	now := o.now()
	if err := o.reclaim(ctx, key, pageID, now.Add(-o.leaseTimeout), "request"); err != nil {
		return nil, err
	}

	ok, err := o.leases.Acquire(ctx, key, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.logger.Info("extraction already in flight", "page_id", pageID)
		return nil, common.NewAppError("CONFLICT", msgExtractionPending, ErrExtractionInFlight)
	}
	// A run that finished between the first check and Acquire has already stored words.
	if err := o.checkExtractable(ctx, pc); err != nil {
		o.release(ctx, key)
		return nil, err
	}

	job, err := o.jobs.Enqueue(ctx, pageID, pc.CloudService.Service)
	if err != nil {
		o.release(ctx, key)
		return nil, err
	}
	o.logger.Info("extraction requested", "page_id", pageID, "job_id", job.ID, "path", path.String())

	if err := dispatch(ctx, job); err != nil {
		o.logger.Error("failed to dispatch extraction", "page_id", pageID, "job_id", job.ID, "err", err)
		o.fail(ctx, job.ID, err.Error())
		o.release(ctx, key)
		return nil, err
	}
	return job, nil
}

// reclaim clears a lease older than cutoff and fails the jobs that held it.
func (o *Orchestrator) reclaim(ctx context.Context, key string, pageID uuid.UUID, cutoff time.Time, source string) error {
	ok, err := o.leases.ReleaseIfOlder(ctx, key, cutoff)
	if err != nil || !ok {
		return err
	}
	o.logger.Error("extraction timed out", "page_id", pageID, "key", key, "source", source)
	o.metrics.LeaseReclaimed(source)
	if _, err := o.jobs.FailOpen(ctx, pageID, msgTimedOut); err != nil {
		return err
	}
	return nil
}

// Run executes one queued job. Failures are recorded on the job and logged; the
// lease is always released.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	defer o.unclaim(jobID)
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		o.logger.Error("failed to load extraction job", "job_id", jobID, "err", err)
		return err
	}
	if job.Status.Terminal() {
		o.logger.Debug("extraction job already finished", "job_id", jobID, "status", job.Status)
		return nil
	}

	key := repository.LeaseKey(job.PageID)
	lease, err := o.leases.Get(ctx, key)
	if err != nil {
		return err
	}
	if lease == nil {
		o.logger.Error("extraction lease missing", "job_id", jobID, "page_id", job.PageID)
		o.fail(ctx, jobID, msgLeaseLost)
		return errors.New(msgLeaseLost)
	}
	if err := o.jobs.Start(ctx, jobID); err != nil {
		if errors.Is(err, common.ErrPrecondition) {
			// another runner moved it out of QUEUED and owns the lease
			o.logger.Debug("extraction job already claimed", "job_id", jobID)
			return nil
		}
		o.logger.Error("failed to start extraction job", "job_id", jobID, "err", err)
		return err
	}
	// Only the lease this job started under is released, never a later one.
	defer func() {
		if _, err := o.leases.ReleaseIfOlder(context.WithoutCancel(ctx), key, lease.StartedAt.Add(time.Nanosecond)); err != nil {
			o.logger.Error("failed to release lease", "job_id", jobID, "key", key, "err", err)
		}
	}()

	blocks, err := o.extract(ctx, job)
	if err != nil {
		o.logger.Error("extraction failed", "job_id", jobID, "page_id", job.PageID, "err", err)
		o.fail(ctx, jobID, err.Error())
		return err
	}
	if err := o.jobs.FinishSuccess(context.WithoutCancel(ctx), jobID, len(blocks)); err != nil {
		return err
	}
	o.logger.Info("extraction finished", "job_id", jobID, "page_id", job.PageID, "words", len(blocks))
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, job *entity.ExtractJob) ([]*entity.TextBlock, error) {
	pc, err := o.pages.Context(ctx, job.PageID)
	if err != nil {
		return nil, err
	}
	n, err := o.blocks.CountByPage(ctx, job.PageID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, errors.New(msgAlreadyExtracted)
	}
	done := o.metrics.ExtractionStarted(job.Service.Display())
	blocks, err := o.extractor.GetWords(ctx, pc)
	done(len(blocks), err)
	return blocks, err
}

func (o *Orchestrator) fail(ctx context.Context, jobID uuid.UUID, msg string) {
	if err := o.jobs.FinishFailure(context.WithoutCancel(ctx), jobID, msg); err != nil {
		o.logger.Error("failed to record extraction failure", "job_id", jobID, "err", err)
	}
}

func (o *Orchestrator) release(ctx context.Context, key string) {
	if err := o.leases.Release(context.WithoutCancel(ctx), key); err != nil {
		o.logger.Error("failed to release lease", "key", key, "err", err)
	}
}

// Status reports where the page's extraction stands. Finding words clears any
// leftover lease.
func (o *Orchestrator) Status(ctx context.Context, path entity.OwnershipPath) (*Status, error) {
	pc, err := o.pages.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	pageID := pc.Page.ID
	key := repository.LeaseKey(pageID)

	words, err := o.blocks.ListByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	job, err := o.jobs.Latest(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if len(words) > 0 {
		o.release(ctx, key)
		return &Status{State: constants.StateCompleted, Words: words, Job: job}, nil
	}

	lease, err := o.leases.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if lease != nil {
		return &Status{State: constants.StateInFlight, Job: job}, nil
	}
	if job == nil {
		return &Status{State: constants.StateNotStarted}, nil
	}
	switch job.Status {
	case constants.JobStatusFailed:
		msg := msgUnexpectedlyStop
		if job.ErrorMessage != nil && *job.ErrorMessage != "" {
			msg = *job.ErrorMessage
		}
		return &Status{State: constants.StateFailed, Job: job, Error: msg}, nil
	case constants.JobStatusQueued, constants.JobStatusRunning:
		return &Status{State: constants.StateFailed, Job: job, Error: msgUnexpectedlyStop}, nil
	}
	return &Status{State: constants.StateNotStarted, Job: job}, nil
}

// Sweep clears every lease older than the lease timeout and fails its open jobs.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	cutoff := o.now().Add(-o.leaseTimeout)
	stale, err := o.leases.ListOlder(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, l := range stale {
		pageID, ok := repository.PageIDFromLeaseKey(l.Key)
		if !ok {
			o.logger.Warn("dropping unrecognized lease", "key", l.Key)
			o.release(ctx, l.Key)
			continue
		}
		ok, err := o.leases.ReleaseIfOlder(ctx, l.Key, cutoff)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}
		reclaimed++
		o.logger.Error("extraction timed out", "page_id", pageID, "key", l.Key,
			"started_at", l.StartedAt, "source", "sweep")
		o.metrics.LeaseReclaimed("sweep")
		if _, err := o.jobs.FailOpen(ctx, pageID, msgTimedOut); err != nil {
			return reclaimed, err
		}
	}
	if reclaimed > 0 {
		o.logger.Info("lease sweep finished", "reclaimed", reclaimed)
	}
	return reclaimed, nil
}

// ClaimQueued dispatches QUEUED jobs that still hold their page lease and are not
// already with this process's dispatcher, such as jobs queued by the CLI. It does
// nothing without a dispatcher.
func (o *Orchestrator) ClaimQueued(ctx context.Context) (int, error) {
	if !o.hasDispatcher() {
		return 0, nil
	}
	queued, err := o.jobs.ListByStatus(ctx, constants.JobStatusQueued)
	if err != nil {
		return 0, err
	}
	claimed := 0
	for _, job := range queued {
		if o.isClaimed(job.ID) {
			continue
		}
		lease, err := o.leases.Get(ctx, repository.LeaseKey(job.PageID))
		if err != nil {
			return claimed, err
		}
		if lease == nil {
			o.logger.Warn("queued extraction lost its lease", "job_id", job.ID, "page_id", job.PageID)
			o.fail(ctx, job.ID, msgLeaseLost)
			continue
		}
		if err := o.dispatch(ctx, job); err != nil {
			// left QUEUED for the next pass
			o.logger.Error("failed to dispatch queued extraction", "job_id", job.ID, "err", err)
			return claimed, err
		}
		claimed++
	}
	if claimed > 0 {
		o.logger.Info("queued extractions claimed", "claimed", claimed)
	}
	return claimed, nil
}

// Recover reconciles job rows with leases after a restart. Queued jobs that still
// hold their lease are dispatched again; anything else left open is failed.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	open, err := o.jobs.ListByStatus(ctx, constants.JobStatusQueued, constants.JobStatusRunning)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, job := range open {
		key := repository.LeaseKey(job.PageID)
		lease, err := o.leases.Get(ctx, key)
		if err != nil {
			return requeued, err
		}
		if job.Status == constants.JobStatusQueued && lease != nil {
			if err := o.dispatch(ctx, job); err != nil {
				o.logger.Error("failed to requeue extraction", "job_id", job.ID, "err", err)
				o.fail(ctx, job.ID, err.Error())
				o.release(ctx, key)
				continue
			}
			requeued++
			continue
		}
		o.logger.Warn("failing interrupted extraction", "job_id", job.ID, "page_id", job.PageID, "status", job.Status)
		o.fail(ctx, job.ID, msgInterrupted)
		if lease != nil {
			o.release(ctx, key)
		}
	}
	if len(open) > 0 {
		o.logger.Info("extraction jobs recovered", "open", len(open), "requeued", requeued)
	}
	return requeued, nil
}
