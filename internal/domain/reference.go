package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaterialLabel classifies any category missing from the
// reference mapping.
const DefaultMaterialLabel = "Other"

// MaterialMapping classifies one source material category. Lookup keys
// are case-insensitive on SourceCategory.
type MaterialMapping struct {
	ID                uuid.UUID `json:"id"`
	SourceCategory    string    `json:"source_category"`
	CanonicalLabel    string    `json:"canonical_label"`
	IsRecyclable      bool      `json:"is_recyclable"`
	IsContamination   bool      `json:"is_contamination"`
	ContaminationType *string   `json:"contamination_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultMaterialMapping returns the fallback entry applied to unmapped
// categories so every record stays classifiable.
func DefaultMaterialMapping() MaterialMapping {
	return MaterialMapping{
		CanonicalLabel:  DefaultMaterialLabel,
		IsRecyclable:    false,
		IsContamination: false,
	}
}

// Organization is a shipment source company resolved by name or code.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location is a physical site scoped to an organization.
type Location struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Program is a shipment program type resolved by name or code.
type Program struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
