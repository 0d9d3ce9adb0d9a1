package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/shipflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUploadStatusConflict indicates that an upload cannot transition to
// the requested state.
var ErrUploadStatusConflict = errors.New("upload status conflict")

type uploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository wires a repository backed by pgxpool.
func NewUploadRepository(pool *pgxpool.Pool) UploadRepository {
	return &uploadRepository{pool: pool}
}

func (r *uploadRepository) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	if upload.ID == uuid.Nil {
		upload.ID = uuid.New()
	}
	status := upload.Status
	if status == "" {
		status = domain.UploadStatusQueued
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO uploads (id, file_name, status)
		 VALUES ($1, $2, $3)`,
		upload.ID,
		upload.FileName,
		string(status),
	)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to create upload: %w", err)
	}

	return r.GetByID(ctx, upload.ID)
}

func (r *uploadRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, file_name, records_total, records_processed, records_failed,
		        status, error_details, error_message, created_at, started_at,
		        completed_at, updated_at
		 FROM uploads
		 WHERE id = $1`,
		id,
	)
	return scanUpload(row)
}

func (r *uploadRepository) List(ctx context.Context, statuses []domain.UploadStatus, limit int, offset int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	statusValues := make([]string, len(statuses))
	for i, status := range statuses {
		statusValues[i] = string(status)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, file_name, records_total, records_processed, records_failed,
		        status, error_details, error_message, created_at, started_at,
		        completed_at, updated_at
		 FROM uploads
		 WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		statusValues,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	uploads := []domain.Upload{}
	for rows.Next() {
		upload, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		uploads = append(uploads, upload)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", rowsErr)
	}

	return uploads, nil
}

func (r *uploadRepository) MarkProcessing(ctx context.Context, id uuid.UUID, recordsTotal int) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE uploads
		 SET status = $2, records_total = $3, started_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id,
		string(domain.UploadStatusProcessing),
		recordsTotal,
		string(domain.UploadStatusQueued),
	)
	if err != nil {
		return fmt.Errorf("failed to mark upload processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadStatusConflict
	}
	return nil
}

func (r *uploadRepository) UpdateProgress(ctx context.Context, id uuid.UUID, recordsProcessed int, recordsFailed int) error {
	if recordsProcessed < 0 {
		recordsProcessed = 0
	}
	if recordsFailed < 0 {
		recordsFailed = 0
	}
	_, err := r.pool.Exec(
		ctx,
		`UPDATE uploads
		 SET records_processed = $2, records_failed = $3, updated_at = now()
		 WHERE id = $1`,
		id,
		recordsProcessed,
		recordsFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload progress: %w", err)
	}
	return nil
}

func (r *uploadRepository) MarkCompleted(ctx context.Context, id uuid.UUID, recordsProcessed int, recordsFailed int, errorDetails []domain.UploadError) error {
	details, err := domain.Upload{ErrorDetails: errorDetails}.ErrorDetailsToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal upload error details: %w", err)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE uploads
		 SET status = $2, records_processed = $3, records_failed = $4,
		     error_details = $5, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $6`,
		id,
		string(domain.UploadStatusCompleted),
		recordsProcessed,
		recordsFailed,
		details,
		string(domain.UploadStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark upload completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadStatusConflict
	}
	return nil
}

func (r *uploadRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, recordsProcessed int, recordsFailed int) error {
	message := pgtype.Text{}
	if errorMessage != "" {
		message = pgtype.Text{String: errorMessage, Valid: true}
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE uploads
		 SET status = $2, error_message = $3, records_processed = $4,
		     records_failed = $5, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status NOT IN ($6, $7)`,
		id,
		string(domain.UploadStatusFailed),
		message,
		recordsProcessed,
		recordsFailed,
		string(domain.UploadStatusCompleted),
		string(domain.UploadStatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to mark upload failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadStatusConflict
	}
	return nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanUpload(row pgxRow) (domain.Upload, error) {
	var (
		upload       domain.Upload
		status       string
		errorDetails []byte
		errorMessage pgtype.Text
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&upload.ID,
		&upload.FileName,
		&upload.RecordsTotal,
		&upload.RecordsProcessed,
		&upload.RecordsFailed,
		&status,
		&errorDetails,
		&errorMessage,
		&upload.CreatedAt,
		&startedAt,
		&completedAt,
		&upload.UpdatedAt,
	); err != nil {
		return domain.Upload{}, fmt.Errorf("failed to scan upload: %w", err)
	}

	upload.Status = domain.UploadStatus(status)

	details, err := domain.UploadErrorsFromJSON(errorDetails)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to unmarshal upload error details: %w", err)
	}
	upload.ErrorDetails = details

	if errorMessage.Valid {
		value := errorMessage.String
		upload.ErrorMessage = &value
	}
	if startedAt.Valid {
		value := startedAt.Time
		upload.StartedAt = &value
	}
	if completedAt.Valid {
		value := completedAt.Time
		upload.CompletedAt = &value
	}

	return upload, nil
}
