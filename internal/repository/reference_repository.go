package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/shipflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type referenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository wires a repository backed by pgxpool.
func NewReferenceRepository(pool *pgxpool.Pool) ReferenceRepository {
	return &referenceRepository{pool: pool}
}

func (r *referenceRepository) ListMaterialMappings(ctx context.Context) ([]domain.MaterialMapping, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, source_category, canonical_label, is_recyclable,
		        is_contamination, contamination_type, created_at, updated_at
		 FROM material_mappings
		 ORDER BY source_category`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list material mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.MaterialMapping{}
	for rows.Next() {
		var (
			mapping           domain.MaterialMapping
			contaminationType pgtype.Text
		)
		if scanErr := rows.Scan(
			&mapping.ID,
			&mapping.SourceCategory,
			&mapping.CanonicalLabel,
			&mapping.IsRecyclable,
			&mapping.IsContamination,
			&contaminationType,
			&mapping.CreatedAt,
			&mapping.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan material mapping: %w", scanErr)
		}
		if contaminationType.Valid {
			value := contaminationType.String
			mapping.ContaminationType = &value
		}
		mappings = append(mappings, mapping)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate material mappings: %w", rowsErr)
	}

	return mappings, nil
}

func (r *referenceRepository) FindOrganization(ctx context.Context, nameOrCode string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, name, code, created_at, updated_at
		 FROM organizations
		 WHERE lower(name) = lower($1) OR code = $1
		 LIMIT 1`,
		nameOrCode,
	).Scan(&org.ID, &org.Name, &org.Code, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	return &org, nil
}

func (r *referenceRepository) FindLocation(ctx context.Context, organizationID uuid.UUID, nameOrCode string) (*domain.Location, error) {
	var location domain.Location
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, organization_id, name, code, created_at, updated_at
		 FROM locations
		 WHERE organization_id = $1 AND (lower(name) = lower($2) OR code = $2)
		 LIMIT 1`,
		organizationID,
		nameOrCode,
	).Scan(&location.ID, &location.OrganizationID, &location.Name, &location.Code, &location.CreatedAt, &location.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find location: %w", err)
	}
	return &location, nil
}

func (r *referenceRepository) FindProgram(ctx context.Context, nameOrCode string) (*domain.Program, error) {
	var program domain.Program
	err := r.pool.QueryRow(
		ctx,
		`SELECT id, name, code, created_at, updated_at
		 FROM programs
		 WHERE lower(name) = lower($1) OR code = $1
		 LIMIT 1`,
		nameOrCode,
	).Scan(&program.ID, &program.Name, &program.Code, &program.CreatedAt, &program.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find program: %w", err)
	}
	return &program, nil
}

func toPGUUID(id *uuid.UUID) pgtype.UUID {
	value := pgtype.UUID{}
	if id != nil {
		value = pgtype.UUID{Valid: true}
		copy(value.Bytes[:], (*id)[:])
	}
	return value
}

func fromPGUUID(value pgtype.UUID) (*uuid.UUID, error) {
	if !value.Valid {
		return nil, nil
	}
	parsed, err := uuid.FromBytes(value.Bytes[:])
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func toPGText(value *string) pgtype.Text {
	if value == nil || *value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *value, Valid: true}
}

func toPGTimestamptz(value *time.Time) pgtype.Timestamptz {
	if value == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *value, Valid: true}
}
