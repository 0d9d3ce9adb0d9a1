package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/shipflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type shipmentRepository struct {
	pool *pgxpool.Pool
}

// NewShipmentRepository wires a repository backed by pgxpool.
func NewShipmentRepository(pool *pgxpool.Pool) ShipmentRepository {
	return &shipmentRepository{pool: pool}
}

func (r *shipmentRepository) Insert(ctx context.Context, record domain.ShipmentRecord) (domain.ShipmentRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	rawPayload, err := record.RawPayloadToJSON()
	if err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO shipments (
			id, unique_id, package_key, weight, shipping_date, processed_date,
			material_type, material_label, is_contamination, contamination_type,
			organization_id, location_id, program_id,
			has_missing_shipping_date, needs_identity_synthesis,
			import_batch, raw_payload
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		record.ID,
		record.UniqueID,
		record.PackageKey,
		record.Weight,
		toPGTimestamptz(record.ShippingDate),
		toPGTimestamptz(record.ProcessedDate),
		record.MaterialType,
		record.MaterialLabel,
		record.IsContamination,
		toPGText(record.ContaminationType),
		toPGUUID(record.OrganizationID),
		toPGUUID(record.LocationID),
		toPGUUID(record.ProgramID),
		record.HasMissingShippingDate,
		record.NeedsIdentitySynthesis,
		record.ImportBatch,
		rawPayload,
	)
	if err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("failed to insert shipment: %w", err)
	}

	return r.GetByUniqueID(ctx, record.UniqueID)
}

func (r *shipmentRepository) GetByUniqueID(ctx context.Context, uniqueID string) (domain.ShipmentRecord, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, unique_id, package_key, weight, shipping_date, processed_date,
		        material_type, material_label, is_contamination, contamination_type,
		        organization_id, location_id, program_id,
		        has_missing_shipping_date, needs_identity_synthesis,
		        import_batch, raw_payload, created_at
		 FROM shipments
		 WHERE unique_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		uniqueID,
	)
	return scanShipment(row)
}

func (r *shipmentRepository) ListByImportBatch(ctx context.Context, importBatch uuid.UUID, limit int, offset int) ([]domain.ShipmentRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, unique_id, package_key, weight, shipping_date, processed_date,
		        material_type, material_label, is_contamination, contamination_type,
		        organization_id, location_id, program_id,
		        has_missing_shipping_date, needs_identity_synthesis,
		        import_batch, raw_payload, created_at
		 FROM shipments
		 WHERE import_batch = $1
		 ORDER BY created_at
		 LIMIT $2 OFFSET $3`,
		importBatch,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	defer rows.Close()

	records := []domain.ShipmentRecord{}
	for rows.Next() {
		record, scanErr := scanShipment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate shipments: %w", rowsErr)
	}

	return records, nil
}

func (r *shipmentRepository) CountByImportBatch(ctx context.Context, importBatch uuid.UUID) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(
		ctx,
		`SELECT count(*) FROM shipments WHERE import_batch = $1`,
		importBatch,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count shipments: %w", err)
	}
	return count, nil
}

func scanShipment(row pgxRow) (domain.ShipmentRecord, error) {
	var (
		record            domain.ShipmentRecord
		shippingDate      pgtype.Timestamptz
		processedDate     pgtype.Timestamptz
		contaminationType pgtype.Text
		organizationID    pgtype.UUID
		locationID        pgtype.UUID
		programID         pgtype.UUID
		rawPayload        []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.UniqueID,
		&record.PackageKey,
		&record.Weight,
		&shippingDate,
		&processedDate,
		&record.MaterialType,
		&record.MaterialLabel,
		&record.IsContamination,
		&contaminationType,
		&organizationID,
		&locationID,
		&programID,
		&record.HasMissingShippingDate,
		&record.NeedsIdentitySynthesis,
		&record.ImportBatch,
		&rawPayload,
		&record.CreatedAt,
	); err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("failed to scan shipment: %w", err)
	}

	if shippingDate.Valid {
		value := shippingDate.Time
		record.ShippingDate = &value
	}
	if processedDate.Valid {
		value := processedDate.Time
		record.ProcessedDate = &value
	}
	if contaminationType.Valid {
		value := contaminationType.String
		record.ContaminationType = &value
	}

	var err error
	if record.OrganizationID, err = fromPGUUID(organizationID); err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("invalid organization identifier: %w", err)
	}
	if record.LocationID, err = fromPGUUID(locationID); err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("invalid location identifier: %w", err)
	}
	if record.ProgramID, err = fromPGUUID(programID); err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("invalid program identifier: %w", err)
	}

	payload, err := domain.RawPayloadFromJSON(rawPayload)
	if err != nil {
		return domain.ShipmentRecord{}, fmt.Errorf("failed to unmarshal raw payload: %w", err)
	}
	record.RawPayload = payload

	return record, nil
}
