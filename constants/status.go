package constants

// JobStatus is the canonical status for rows in extraction_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued  JobStatus = "QUEUED"  // lease held, waiting for a worker
	JobStatusRunning JobStatus = "RUNNING" // backend call in progress
	JobStatusDone    JobStatus = "DONE"    // text blocks persisted
	JobStatusFailed  JobStatus = "FAILED"  // terminal failure (backend error, timeout)
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// ExtractionState is the per-page state exposed to status polling.
type ExtractionState string

const (
	StateNotStarted ExtractionState = "not_started"
	StateInFlight   ExtractionState = "in_progress"
	StateCompleted  ExtractionState = "completed"
	StateFailed     ExtractionState = "failed"
)
