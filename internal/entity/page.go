package entity

import (
	"time"

	"github.com/google/uuid"
)

// Page represents one scanned page image for data transfer between layers.
type Page struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Number     int       `json:"number"`
	ImagePath  string    `json:"image_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// Document groups pages under a collection.
type Document struct {
	ID                uuid.UUID `json:"id"`
	CollectionID      uuid.UUID `json:"collection_id"`
	Identifier        string    `json:"identifier"`
	UseLongSDetection bool      `json:"use_long_s_detection"`
	CreatedAt         time.Time `json:"created_at"`
}

// PageContext is a page resolved together with what extraction needs from its owners.
type PageContext struct {
	Page         Page          `json:"page"`
	Document     Document      `json:"document"`
	Organization Organization  `json:"organization"`
	CloudService *CloudService `json:"cloud_service,omitempty"`
}
