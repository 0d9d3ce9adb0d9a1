package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UploadStatus captures lifecycle state for a batch ingestion job.
type UploadStatus string

const (
	UploadStatusQueued     UploadStatus = "QUEUED"
	UploadStatusProcessing UploadStatus = "PROCESSING"
	UploadStatusCompleted  UploadStatus = "COMPLETED"
	UploadStatusFailed     UploadStatus = "FAILED"
)

// Upload mirrors persisted batch job metadata for dashboards and workers.
type Upload struct {
	ID               uuid.UUID     `json:"id"`
	FileName         string        `json:"file_name"`
	RecordsTotal     int           `json:"records_total"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsFailed    int           `json:"records_failed"`
	Status           UploadStatus  `json:"status"`
	ErrorDetails     []UploadError `json:"error_details,omitempty"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// UploadError captures one row-level failure surfaced on the upload.
type UploadError struct {
	RecordIdentifier string `json:"record_identifier"`
	ErrorMessage     string `json:"error_message"`
}

// ErrorDetailsToJSON marshals accumulated row failures for storage.
// Returns nil when no failures occurred so the column stays NULL.
func (u Upload) ErrorDetailsToJSON() (json.RawMessage, error) {
	if len(u.ErrorDetails) == 0 {
		return nil, nil
	}
	return json.Marshal(u.ErrorDetails)
}

// UploadErrorsFromJSON unmarshals persisted error details.
func UploadErrorsFromJSON(data []byte) ([]UploadError, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var details []UploadError
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, err
	}
	return details, nil
}

// IsTerminal reports whether the upload reached a final state.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}
