package repository

import (
	"context"

	"github.com/rpattn/shipflow/internal/domain"

	"github.com/google/uuid"
)

// ShipmentRepository persists canonical shipment records.
type ShipmentRepository interface {
	Insert(ctx context.Context, record domain.ShipmentRecord) (domain.ShipmentRecord, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (domain.ShipmentRecord, error)
	ListByImportBatch(ctx context.Context, importBatch uuid.UUID, limit int, offset int) ([]domain.ShipmentRecord, error)
	CountByImportBatch(ctx context.Context, importBatch uuid.UUID) (int64, error)
}

// UploadRepository manages batch job lifecycle state. Terminal
// transitions are status-guarded so a late worker cannot resurrect a
// finished upload.
type UploadRepository interface {
	Create(ctx context.Context, upload domain.Upload) (domain.Upload, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error)
	List(ctx context.Context, statuses []domain.UploadStatus, limit int, offset int) ([]domain.Upload, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, recordsTotal int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, recordsProcessed int, recordsFailed int) error
	MarkCompleted(ctx context.Context, id uuid.UUID, recordsProcessed int, recordsFailed int, errorDetails []domain.UploadError) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, recordsProcessed int, recordsFailed int) error
}

// ReferenceRepository reads the slowly-changing reference dataset.
// Find methods return (nil, nil) on no match; absence is data, not an
// error.
type ReferenceRepository interface {
	ListMaterialMappings(ctx context.Context) ([]domain.MaterialMapping, error)
	FindOrganization(ctx context.Context, nameOrCode string) (*domain.Organization, error)
	FindLocation(ctx context.Context, organizationID uuid.UUID, nameOrCode string) (*domain.Location, error)
	FindProgram(ctx context.Context, nameOrCode string) (*domain.Program, error)
}
