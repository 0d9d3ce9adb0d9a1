package ingestion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rpattn/shipflow/internal/config"
	"github.com/rpattn/shipflow/internal/domain"
	"github.com/rpattn/shipflow/internal/repository"
	"github.com/rpattn/shipflow/internal/tabular"

	"github.com/google/uuid"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *stubUploadRepo, *stubShipmentRepo, *stubReferenceRepo) {
	t.Helper()
	uploads := newStubUploadRepo()
	shipments := &stubShipmentRepo{}
	references := &stubReferenceRepo{}
	service := NewService(uploads, shipments, references, config.DefaultSynonyms(), opts...)
	return service, uploads, shipments, references
}

func decodeRows(t *testing.T, text string) []tabular.RawRow {
	t.Helper()
	return tabular.Decode(text)
}

func createUpload(t *testing.T, uploads *stubUploadRepo) uuid.UUID {
	t.Helper()
	upload, err := uploads.Create(context.Background(), domain.Upload{
		ID:       uuid.New(),
		FileName: "shipments.csv",
		Status:   domain.UploadStatusQueued,
	})
	if err != nil {
		t.Fatalf("failed to create upload: %v", err)
	}
	return upload.ID
}

func TestRunCompletesWithPartialFailures(t *testing.T) {
	service, uploads, shipments, _ := newTestService(t)
	uploadID := createUpload(t, uploads)

	rows := decodeRows(t,
		"UniqueID,Weight\n"+
			"SHIP-1,2.5\n"+
			"SHIP-2,heavy\n"+
			"SHIP-3,1.0\n"+
			"SHIP-4,-3\n"+
			"SHIP-5,4.0\n")

	stats, err := service.Run(context.Background(), uploadID, rows)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if stats.Total != 5 || stats.Succeeded != 3 || stats.Failed != 2 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	upload := uploads.mustGet(t, uploadID)
	if upload.Status != domain.UploadStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", upload.Status)
	}
	if upload.RecordsTotal != 5 || upload.RecordsProcessed != 5 || upload.RecordsFailed != 2 {
		t.Fatalf("unexpected counters: %+v", upload)
	}
	if len(upload.ErrorDetails) != 2 {
		t.Fatalf("expected 2 error details, got %d", len(upload.ErrorDetails))
	}
	if upload.ErrorDetails[0].RecordIdentifier != "SHIP-2" || upload.ErrorDetails[1].RecordIdentifier != "SHIP-4" {
		t.Fatalf("unexpected failure identifiers: %+v", upload.ErrorDetails)
	}
	if len(shipments.inserted) != 3 {
		t.Fatalf("expected 3 inserted records, got %d", len(shipments.inserted))
	}
}

func TestRunExcludesSkippedRowsFromProcessed(t *testing.T) {
	service, uploads, shipments, _ := newTestService(t)
	uploadID := createUpload(t, uploads)

	rows := decodeRows(t,
		"UniqueID,Weight\n"+
			"SHIP-1,2.5\n"+
			"SHIP-2,0\n"+
			"SHIP-3,\n"+
			"SHIP-4,1.0\n")

	stats, err := service.Run(context.Background(), uploadID, rows)
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if stats.Total != 4 || stats.Succeeded != 2 || stats.Skipped != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	upload := uploads.mustGet(t, uploadID)
	if upload.RecordsTotal != 4 || upload.RecordsProcessed != 2 || upload.RecordsFailed != 0 {
		t.Fatalf("skipped rows must not count as processed: %+v", upload)
	}
	if len(shipments.inserted) != 2 {
		t.Fatalf("expected 2 inserted records, got %d", len(shipments.inserted))
	}
}

func TestRunFailsUploadWhenMappingsUnavailable(t *testing.T) {
	service, uploads, shipments, references := newTestService(t)
	references.mappingsErr = fmt.Errorf("connection refused")
	uploadID := createUpload(t, uploads)

	rows := decodeRows(t, "UniqueID,Weight\nSHIP-1,2.5\n")

	if _, err := service.Run(context.Background(), uploadID, rows); err == nil {
		t.Fatalf("expected run to surface the mapping load error")
	}

	upload := uploads.mustGet(t, uploadID)
	if upload.Status != domain.UploadStatusFailed {
		t.Fatalf("expected FAILED, got %s", upload.Status)
	}
	if upload.ErrorMessage == nil || !strings.Contains(*upload.ErrorMessage, "connection refused") {
		t.Fatalf("expected persisted error message, got %v", upload.ErrorMessage)
	}
	if len(shipments.inserted) != 0 {
		t.Fatalf("no records should be inserted, got %d", len(shipments.inserted))
	}
}

func TestRunCountsInsertErrorsAsRecordFailures(t *testing.T) {
	service, uploads, shipments, _ := newTestService(t)
	shipments.failUniqueIDs = map[string]bool{"SHIP-2": true}
	uploadID := createUpload(t, uploads)

	rows := decodeRows(t,
		"UniqueID,Weight\n"+
			"SHIP-1,2.5\n"+
			"SHIP-2,3.0\n"+
			"SHIP-3,1.0\n")

	stats, err := service.Run(context.Background(), uploadID, rows)
	if err != nil {
		t.Fatalf("insert errors must not abort the run: %v", err)
	}
	if stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	upload := uploads.mustGet(t, uploadID)
	if upload.Status != domain.UploadStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", upload.Status)
	}
	if len(upload.ErrorDetails) != 1 || upload.ErrorDetails[0].RecordIdentifier != "SHIP-2" {
		t.Fatalf("unexpected error details: %+v", upload.ErrorDetails)
	}
}

func TestRunFlushesProgressPerChunk(t *testing.T) {
	service, uploads, _, _ := newTestService(t, WithChunkSize(2))
	uploadID := createUpload(t, uploads)

	var payload strings.Builder
	payload.WriteString("UniqueID,Weight\n")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&payload, "SHIP-%d,1.0\n", i)
	}

	if _, err := service.Run(context.Background(), uploadID, decodeRows(t, payload.String())); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	// 7 rows at chunk size 2: flushes after rows 2, 4 and 6, then the
	// completion write covers the trailing partial chunk.
	if uploads.progressWrites != 3 {
		t.Fatalf("expected 3 progress writes, got %d", uploads.progressWrites)
	}
	upload := uploads.mustGet(t, uploadID)
	if upload.RecordsProcessed != 7 {
		t.Fatalf("expected final count 7, got %d", upload.RecordsProcessed)
	}
}

func TestRunFailsUploadWhenProgressWriteFails(t *testing.T) {
	service, uploads, _, _ := newTestService(t, WithChunkSize(1))
	uploads.progressErr = fmt.Errorf("disk full")
	uploadID := createUpload(t, uploads)

	rows := decodeRows(t, "UniqueID,Weight\nSHIP-1,2.5\nSHIP-2,3.0\n")

	if _, err := service.Run(context.Background(), uploadID, rows); err == nil {
		t.Fatalf("expected run to surface the progress write error")
	}

	upload := uploads.mustGet(t, uploadID)
	if upload.Status != domain.UploadStatusFailed {
		t.Fatalf("expected FAILED, got %s", upload.Status)
	}
}

func TestRunRequiresQueuedUpload(t *testing.T) {
	service, uploads, _, _ := newTestService(t)
	uploadID := createUpload(t, uploads)
	if err := uploads.MarkProcessing(context.Background(), uploadID, 0); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	rows := decodeRows(t, "UniqueID,Weight\nSHIP-1,2.5\n")

	if _, err := service.Run(context.Background(), uploadID, rows); err == nil {
		t.Fatalf("expected status conflict for an already-claimed upload")
	}
}

func TestAcceptRejectsUnsupportedFormat(t *testing.T) {
	service, uploads, _, _ := newTestService(t)

	_, _, err := service.Accept(context.Background(), "upload.pdf", []byte("%PDF"))
	if err == nil {
		t.Fatalf("expected unsupported format error")
	}

	// The upload is registered before decoding, then marked failed.
	if len(uploads.records) != 1 {
		t.Fatalf("expected 1 upload record, got %d", len(uploads.records))
	}
	for _, upload := range uploads.records {
		if upload.Status != domain.UploadStatusFailed {
			t.Fatalf("expected FAILED, got %s", upload.Status)
		}
	}
}

func TestAcceptRejectsEmptyPayload(t *testing.T) {
	service, uploads, _, _ := newTestService(t)

	if _, _, err := service.Accept(context.Background(), "upload.csv", nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if len(uploads.records) != 0 {
		t.Fatalf("empty payloads must not register uploads, got %d", len(uploads.records))
	}
}

// stubUploadRepo mirrors the status guards of the real repository so
// lifecycle bugs surface in tests.
type stubUploadRepo struct {
	records map[uuid.UUID]domain.Upload

	progressWrites int
	progressErr    error
}

func newStubUploadRepo() *stubUploadRepo {
	return &stubUploadRepo{records: make(map[uuid.UUID]domain.Upload)}
}

func (s *stubUploadRepo) mustGet(t *testing.T, id uuid.UUID) domain.Upload {
	t.Helper()
	upload, ok := s.records[id]
	if !ok {
		t.Fatalf("upload %s not found", id)
	}
	return upload
}

func (s *stubUploadRepo) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	if upload.ID == uuid.Nil {
		upload.ID = uuid.New()
	}
	s.records[upload.ID] = upload
	return upload, nil
}

func (s *stubUploadRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	upload, ok := s.records[id]
	if !ok {
		return domain.Upload{}, fmt.Errorf("upload not found")
	}
	return upload, nil
}

func (s *stubUploadRepo) List(ctx context.Context, statuses []domain.UploadStatus, limit int, offset int) ([]domain.Upload, error) {
	var uploads []domain.Upload
	for _, upload := range s.records {
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func (s *stubUploadRepo) MarkProcessing(ctx context.Context, id uuid.UUID, recordsTotal int) error {
	upload, ok := s.records[id]
	if !ok {
		return fmt.Errorf("upload not found")
	}
	if upload.Status != domain.UploadStatusQueued {
		return repository.ErrUploadStatusConflict
	}
	upload.Status = domain.UploadStatusProcessing
	upload.RecordsTotal = recordsTotal
	s.records[id] = upload
	return nil
}

func (s *stubUploadRepo) UpdateProgress(ctx context.Context, id uuid.UUID, recordsProcessed int, recordsFailed int) error {
	if s.progressErr != nil {
		return s.progressErr
	}
	upload, ok := s.records[id]
	if !ok {
		return fmt.Errorf("upload not found")
	}
	s.progressWrites++
	upload.RecordsProcessed = recordsProcessed
	upload.RecordsFailed = recordsFailed
	s.records[id] = upload
	return nil
}

func (s *stubUploadRepo) MarkCompleted(ctx context.Context, id uuid.UUID, recordsProcessed int, recordsFailed int, errorDetails []domain.UploadError) error {
	upload, ok := s.records[id]
	if !ok {
		return fmt.Errorf("upload not found")
	}
	if upload.Status != domain.UploadStatusProcessing {
		return repository.ErrUploadStatusConflict
	}
	upload.Status = domain.UploadStatusCompleted
	upload.RecordsProcessed = recordsProcessed
	upload.RecordsFailed = recordsFailed
	upload.ErrorDetails = errorDetails
	s.records[id] = upload
	return nil
}

func (s *stubUploadRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, recordsProcessed int, recordsFailed int) error {
	upload, ok := s.records[id]
	if !ok {
		return fmt.Errorf("upload not found")
	}
	if upload.Status.IsTerminal() {
		return repository.ErrUploadStatusConflict
	}
	upload.Status = domain.UploadStatusFailed
	upload.ErrorMessage = &errorMessage
	upload.RecordsProcessed = recordsProcessed
	upload.RecordsFailed = recordsFailed
	s.records[id] = upload
	return nil
}

type stubShipmentRepo struct {
	inserted      []domain.ShipmentRecord
	failUniqueIDs map[string]bool
}

func (s *stubShipmentRepo) Insert(ctx context.Context, record domain.ShipmentRecord) (domain.ShipmentRecord, error) {
	if s.failUniqueIDs[record.UniqueID] {
		return domain.ShipmentRecord{}, fmt.Errorf("duplicate key value violates unique constraint")
	}
	s.inserted = append(s.inserted, record)
	return record, nil
}

func (s *stubShipmentRepo) GetByUniqueID(ctx context.Context, uniqueID string) (domain.ShipmentRecord, error) {
	for _, record := range s.inserted {
		if record.UniqueID == uniqueID {
			return record, nil
		}
	}
	return domain.ShipmentRecord{}, fmt.Errorf("shipment not found")
}

func (s *stubShipmentRepo) ListByImportBatch(ctx context.Context, importBatch uuid.UUID, limit int, offset int) ([]domain.ShipmentRecord, error) {
	var records []domain.ShipmentRecord
	for _, record := range s.inserted {
		if record.ImportBatch == importBatch {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *stubShipmentRepo) CountByImportBatch(ctx context.Context, importBatch uuid.UUID) (int64, error) {
	records, _ := s.ListByImportBatch(ctx, importBatch, 0, 0)
	return int64(len(records)), nil
}

type stubReferenceRepo struct {
	mappings    []domain.MaterialMapping
	mappingsErr error
}

func (s *stubReferenceRepo) ListMaterialMappings(ctx context.Context) ([]domain.MaterialMapping, error) {
	if s.mappingsErr != nil {
		return nil, s.mappingsErr
	}
	return s.mappings, nil
}

func (s *stubReferenceRepo) FindOrganization(ctx context.Context, nameOrCode string) (*domain.Organization, error) {
	return nil, nil
}

func (s *stubReferenceRepo) FindLocation(ctx context.Context, organizationID uuid.UUID, nameOrCode string) (*domain.Location, error) {
	return nil, nil
}

func (s *stubReferenceRepo) FindProgram(ctx context.Context, nameOrCode string) (*domain.Program, error) {
	return nil, nil
}

var _ repository.UploadRepository = (*stubUploadRepo)(nil)
var _ repository.ShipmentRepository = (*stubShipmentRepo)(nil)
var _ repository.ReferenceRepository = (*stubReferenceRepo)(nil)
