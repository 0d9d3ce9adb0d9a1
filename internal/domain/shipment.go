package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ShipmentRecord is the canonical, persisted representation of one
// ingested line item. Weight is always stored in pounds.
type ShipmentRecord struct {
	ID                     uuid.UUID         `json:"id"`
	UniqueID               string            `json:"unique_id"`
	PackageKey             string            `json:"package_key"`
	Weight                 float64           `json:"weight"`
	ShippingDate           *time.Time        `json:"shipping_date,omitempty"`
	ProcessedDate          *time.Time        `json:"processed_date,omitempty"`
	MaterialType           string            `json:"material_type"`
	MaterialLabel          string            `json:"material_label"`
	IsContamination        bool              `json:"is_contamination"`
	ContaminationType      *string           `json:"contamination_type,omitempty"`
	OrganizationID         *uuid.UUID        `json:"organization_id,omitempty"`
	LocationID             *uuid.UUID        `json:"location_id,omitempty"`
	ProgramID              *uuid.UUID        `json:"program_id,omitempty"`
	HasMissingShippingDate bool              `json:"has_missing_shipping_date"`
	NeedsIdentitySynthesis bool              `json:"needs_identity_synthesis"`
	ImportBatch            uuid.UUID         `json:"import_batch"`
	RawPayload             map[string]string `json:"raw_payload"`
	CreatedAt              time.Time         `json:"created_at"`
}

// RawPayloadToJSON marshals the retained source row into the JSONB
// layout stored in Postgres.
func (r ShipmentRecord) RawPayloadToJSON() (json.RawMessage, error) {
	payload := r.RawPayload
	if payload == nil {
		payload = map[string]string{}
	}
	return json.Marshal(payload)
}

// RawPayloadFromJSON hydrates a stored source row.
func RawPayloadFromJSON(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]string{}
	}
	return payload, nil
}
