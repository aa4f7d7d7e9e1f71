package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
)

type ExtractJobRepository interface {
	Enqueue(ctx context.Context, pageID uuid.UUID, service constants.CloudService) (*entity.ExtractJob, error)
	Start(ctx context.Context, jobID uuid.UUID) error
	FinishSuccess(ctx context.Context, jobID uuid.UUID, blockCount int) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
	// Latest returns the most recently queued job for a page, or nil.
	Latest(ctx context.Context, pageID uuid.UUID) (*entity.ExtractJob, error)
	ListByStatus(ctx context.Context, statuses ...constants.JobStatus) ([]*entity.ExtractJob, error)
	// FailOpen marks a page's QUEUED or RUNNING jobs FAILED.
	FailOpen(ctx context.Context, pageID uuid.UUID, message string) (int, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log}
}

var jobColumns = []string{"id", "page_id", "service", "status", "queued_at", "started_at", "finished_at", "error_message", "block_count"}

func (r *extractJobRepo) Enqueue(ctx context.Context, pageID uuid.UUID, service constants.CloudService) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:       uuid.New(),
		PageID:   pageID,
		Service:  service,
		Status:   constants.JobStatusQueued,
		QueuedAt: time.Now().UTC(),
	}
	query, args := r.db.Builder().Insert("extraction_jobs").
		Columns("id", "page_id", "service", "status", "queued_at", "block_count").
		Values(job.ID, job.PageID, string(job.Service), string(job.Status), job.QueuedAt, 0).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("extract_job enqueue failed", "page_id", pageID, "err", err)
		return nil, err
	}
	r.log.Info("extract_job queued", "job_id", job.ID, "page_id", pageID, "service", service.Display())
	return job, nil
}

func (r *extractJobRepo) Start(ctx context.Context, jobID uuid.UUID) error {
	query, args := r.db.Builder().Update("extraction_jobs").
		Set("status", string(constants.JobStatusRunning)).
		Set("started_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", jobID),
			entsql.EQ("status", string(constants.JobStatusQueued)),
		)).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("extract_job start failed", "job_id", jobID, "err", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.Precondition("job is not queued", nil)
	}
	r.log.Info("extract_job started", "job_id", jobID)
	return nil
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, blockCount int) error {
	query, args := r.db.Builder().Update("extraction_jobs").
		Set("status", string(constants.JobStatusDone)).
		Set("finished_at", time.Now().UTC()).
		Set("block_count", blockCount).
		Where(entsql.EQ("id", jobID)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("extract_job finish(DONE) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job finished (DONE)", "job_id", jobID, "blocks", blockCount)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	query, args := r.db.Builder().Update("extraction_jobs").
		Set("status", string(constants.JobStatusFailed)).
		Set("finished_at", time.Now().UTC()).
		Set("error_message", message).
		Where(entsql.EQ("id", jobID)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *extractJobRepo) FailOpen(ctx context.Context, pageID uuid.UUID, message string) (int, error) {
	query, args := r.db.Builder().Update("extraction_jobs").
		Set("status", string(constants.JobStatusFailed)).
		Set("finished_at", time.Now().UTC()).
		Set("error_message", message).
		Where(entsql.And(
			entsql.EQ("page_id", pageID),
			entsql.In("status", string(constants.JobStatusQueued), string(constants.JobStatusRunning)),
		)).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("extract_job fail open jobs failed", "page_id", pageID, "err", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *extractJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	b := r.db.Builder()
	query, args := b.Select(jobColumns...).From(b.Table("extraction_jobs")).Where(entsql.EQ("id", jobID)).Query()
	jobs, err := r.list(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.NotFound("extraction job")
	}
	return jobs[0], nil
}

func (r *extractJobRepo) Latest(ctx context.Context, pageID uuid.UUID) (*entity.ExtractJob, error) {
	b := r.db.Builder()
	query, args := b.Select(jobColumns...).
		From(b.Table("extraction_jobs")).
		Where(entsql.EQ("page_id", pageID)).
		OrderBy(entsql.Desc("queued_at")).
		Limit(1).
		Query()
	jobs, err := r.list(ctx, query, args)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

func (r *extractJobRepo) ListByStatus(ctx context.Context, statuses ...constants.JobStatus) ([]*entity.ExtractJob, error) {
	vals := make([]any, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}
	b := r.db.Builder()
	query, args := b.Select(jobColumns...).
		From(b.Table("extraction_jobs")).
		Where(entsql.In("status", vals...)).
		OrderBy("queued_at").
		Query()
	return r.list(ctx, query, args)
}

func (r *extractJobRepo) list(ctx context.Context, query string, args []any) ([]*entity.ExtractJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("extract_job query failed", "err", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.ExtractJob
	for rows.Next() {
		var (
			j                 entity.ExtractJob
			service, status   string
			started, finished sql.NullTime
			msg               sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.PageID, &service, &status, &j.QueuedAt, &started, &finished, &msg, &j.BlockCount); err != nil {
			return nil, err
		}
		j.Service = constants.CloudService(service)
		j.Status = constants.JobStatus(status)
		if started.Valid {
			j.StartedAt = &started.Time
		}
		if finished.Valid {
			j.FinishedAt = &finished.Time
		}
		if msg.Valid {
			j.ErrorMessage = &msg.String
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}
