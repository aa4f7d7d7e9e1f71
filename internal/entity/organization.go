package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
)

// Organization owns collections and the extraction backend credentials.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Collection groups documents under an organization.
type Collection struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	CreatedAt      time.Time `json:"created_at"`
}

// CloudService is the extraction backend configured for an organization.
type CloudService struct {
	ID             uuid.UUID              `json:"id"`
	OrganizationID uuid.UUID              `json:"organization_id"`
	Service        constants.CloudService `json:"service"`
	ClientID       string                 `json:"-"`
	ClientSecret   string                 `json:"-"`
	Region         string                 `json:"region,omitempty"`
}
