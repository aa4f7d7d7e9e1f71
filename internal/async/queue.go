package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one extraction waiting for a worker. The durable record is the
// extraction_jobs row; this is only what a worker needs to pick it up.
type Job struct {
	JobID       uuid.UUID
	PageID      uuid.UUID
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
