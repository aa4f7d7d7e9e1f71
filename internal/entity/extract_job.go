package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
)

// ExtractJob represents one extraction attempt for a page.
type ExtractJob struct {
	ID           uuid.UUID              `json:"id"`
	PageID       uuid.UUID              `json:"page_id"`
	Service      constants.CloudService `json:"service"`
	Status       constants.JobStatus    `json:"status"`
	QueuedAt     time.Time              `json:"queued_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	BlockCount   int                    `json:"block_count"`
}

// Lease is the in-flight marker for a page extraction.
type Lease struct {
	Key       string    `json:"key"`
	StartedAt time.Time `json:"started_at"`
}
