package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/shipflow/internal/config"
	"github.com/rpattn/shipflow/internal/domain"
	"github.com/rpattn/shipflow/internal/normalizer"
	"github.com/rpattn/shipflow/internal/reference"
	"github.com/rpattn/shipflow/internal/repository"
	"github.com/rpattn/shipflow/internal/tabular"

	"github.com/google/uuid"
)

const defaultChunkSize = 25

// Service drives a full upload through the normalizer, isolating
// per-record failures and maintaining upload-level progress.
type Service struct {
	uploads    repository.UploadRepository
	shipments  repository.ShipmentRepository
	references repository.ReferenceRepository
	normalizer *normalizer.Normalizer

	// chunkSize bounds the frequency of progress-persistence writes,
	// not correctness.
	chunkSize int
}

type Option func(*Service)

// WithChunkSize overrides how many rows are consumed between progress
// writes.
func WithChunkSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// NewService wires the batch coordinator.
func NewService(
	uploads repository.UploadRepository,
	shipments repository.ShipmentRepository,
	references repository.ReferenceRepository,
	synonyms config.Synonyms,
	opts ...Option,
) *Service {
	service := &Service{
		uploads:    uploads,
		shipments:  shipments,
		references: references,
		normalizer: normalizer.New(synonyms),
		chunkSize:  defaultChunkSize,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.chunkSize <= 0 {
		service.chunkSize = defaultChunkSize
	}
	return service
}

// BatchStats summarizes one run. Skipped rows appear only in Total.
type BatchStats struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
}

// Processed counts rows consumed by the normalizer that were not
// intentionally excluded.
func (s BatchStats) Processed() int {
	return s.Succeeded + s.Failed
}

// Accept registers an upload before decoding, decodes the payload, and
// hands the rows to the background run. The caller gets the accepted
// upload and row count immediately; progress is observable only by
// polling the persisted upload.
func (s *Service) Accept(ctx context.Context, fileName string, payload []byte) (domain.Upload, int, error) {
	if strings.TrimSpace(fileName) == "" {
		return domain.Upload{}, 0, fmt.Errorf("file name is required")
	}
	if len(payload) == 0 {
		return domain.Upload{}, 0, fmt.Errorf("file is empty")
	}

	upload, err := s.uploads.Create(ctx, domain.Upload{
		ID:       uuid.New(),
		FileName: fileName,
		Status:   domain.UploadStatusQueued,
	})
	if err != nil {
		return domain.Upload{}, 0, fmt.Errorf("failed to create upload: %w", err)
	}

	rows, err := tabular.DecodeFile(fileName, payload)
	if err != nil {
		s.failUpload(ctx, upload.ID, err, BatchStats{})
		return domain.Upload{}, 0, err
	}

	s.Queue(upload.ID, rows)
	return upload, len(rows), nil
}

// Queue launches the batch run detached from the caller. There is no
// result channel back; the run's only observable effects are writes to
// the upload row and the persisted shipment records.
func (s *Service) Queue(uploadID uuid.UUID, rows []tabular.RawRow) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[ingest] panic while processing upload %s: %v", uploadID, rec)
				s.failUpload(context.Background(), uploadID, fmt.Errorf("panic: %v", rec), BatchStats{})
			}
		}()
		if _, err := s.Run(context.Background(), uploadID, rows); err != nil {
			log.Printf("[ingest] upload %s failed: %v", uploadID, err)
		}
	}()
}

// Run processes all rows strictly sequentially. Per-record failures
// are captured and processing continues; only a pipeline-level error
// (reference mapping unavailable, progress writes failing) marks the
// whole upload failed. Already-inserted records from earlier chunks
// are never rolled back.
func (s *Service) Run(ctx context.Context, uploadID uuid.UUID, rows []tabular.RawRow) (BatchStats, error) {
	stats := BatchStats{Total: len(rows)}

	if err := s.uploads.MarkProcessing(ctx, uploadID, len(rows)); err != nil {
		return stats, fmt.Errorf("failed to mark upload processing: %w", err)
	}

	snapshot, err := reference.LoadSnapshot(ctx, s.references)
	if err != nil {
		s.failUpload(ctx, uploadID, err, stats)
		return stats, err
	}
	resolver := reference.NewResolver(s.references)

	var failures []domain.UploadError
	sinceFlush := 0

	for _, row := range rows {
		result := s.normalizer.Normalize(ctx, row, snapshot, resolver, uploadID)
		switch result.Status {
		case normalizer.StatusSkipped:
			stats.Skipped++
		case normalizer.StatusFailed:
			stats.Failed++
			failures = append(failures, domain.UploadError{
				RecordIdentifier: result.RecordIdentifier,
				ErrorMessage:     result.Err.Error(),
			})
		case normalizer.StatusRecord:
			if _, insertErr := s.shipments.Insert(ctx, result.Record); insertErr != nil {
				stats.Failed++
				failures = append(failures, domain.UploadError{
					RecordIdentifier: result.Record.UniqueID,
					ErrorMessage:     fmt.Sprintf("failed to insert shipment: %v", insertErr),
				})
			} else {
				stats.Succeeded++
			}
		}

		sinceFlush++
		if sinceFlush >= s.chunkSize {
			sinceFlush = 0
			if err := s.uploads.UpdateProgress(ctx, uploadID, stats.Processed(), stats.Failed); err != nil {
				s.failUpload(ctx, uploadID, err, stats)
				return stats, fmt.Errorf("failed to persist upload progress: %w", err)
			}
		}
	}

	if err := s.uploads.MarkCompleted(ctx, uploadID, stats.Processed(), stats.Failed, failures); err != nil {
		return stats, fmt.Errorf("failed to mark upload completed: %w", err)
	}

	log.Printf("[ingest] upload %s completed (total=%d ok=%d failed=%d skipped=%d)",
		uploadID, stats.Total, stats.Succeeded, stats.Failed, stats.Skipped)
	return stats, nil
}

func (s *Service) failUpload(ctx context.Context, uploadID uuid.UUID, err error, stats BatchStats) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if markErr := s.uploads.MarkFailed(ctx, uploadID, truncateError(err), stats.Processed(), stats.Failed); markErr != nil {
		log.Printf("[ingest] failed to mark upload %s as failed: %v (original error: %v)", uploadID, markErr, err)
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
