package normalizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/shipflow/internal/config"
	"github.com/rpattn/shipflow/internal/domain"
	"github.com/rpattn/shipflow/internal/identity"
	"github.com/rpattn/shipflow/internal/reference"
	"github.com/rpattn/shipflow/internal/tabular"

	"github.com/google/uuid"
)

// poundsPerKilogram converts kilogram-labelled columns to the canonical
// storage unit.
const poundsPerKilogram = 2.2046226218

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
}

// Status is the three-way outcome of normalizing one row.
type Status int

const (
	// StatusRecord means a canonical record was produced.
	StatusRecord Status = iota
	// StatusSkipped means the row was intentionally excluded (zero
	// weight). Not a failure; the caller must not persist or count it.
	StatusSkipped
	// StatusFailed means normalization raised a record-level error.
	StatusFailed
)

// Result carries one normalization outcome. The coordinator switches
// on Status instead of relying on error control flow.
type Result struct {
	Status Status
	Record domain.ShipmentRecord
	// RecordIdentifier is the best-effort row key attached to failures.
	RecordIdentifier string
	Err              error
}

func success(record domain.ShipmentRecord) Result {
	return Result{Status: StatusRecord, Record: record}
}

func skipped() Result {
	return Result{Status: StatusSkipped}
}

func failure(identifier string, err error) Result {
	return Result{Status: StatusFailed, RecordIdentifier: identifier, Err: err}
}

// Normalizer maps decoded rows into canonical shipment records.
type Normalizer struct {
	synonyms config.Synonyms
	deriver  *identity.Deriver
}

// New builds a normalizer over the configured field synonyms.
func New(synonyms config.Synonyms) *Normalizer {
	return &Normalizer{
		synonyms: synonyms,
		deriver:  identity.NewDeriver(synonyms),
	}
}

// Deriver exposes the identity deriver for callers that need key
// derivation outside a full normalization pass.
func (n *Normalizer) Deriver() *identity.Deriver {
	return n.deriver
}

// Normalize maps one row into a canonical record. Zero weight skips
// the row; any other defect is a record-level failure the caller
// isolates. Foreign-key misses degrade to nil and never fail the row.
func (n *Normalizer) Normalize(ctx context.Context, row tabular.RawRow, snapshot reference.Snapshot, resolver *reference.Resolver, importBatch uuid.UUID) Result {
	identifier := row.First(n.synonyms.UniqueID...)

	weight, err := n.parseWeight(row)
	if err != nil {
		return failure(bestIdentifier(identifier, row), err)
	}
	if weight == 0 {
		return skipped()
	}

	uniqueID, synthesized := n.deriver.DeriveKey(row)
	packageKey := n.deriver.DerivePackageKey(row, uniqueID)

	materialType := row.First(n.synonyms.Material...)
	mapping := snapshot.Resolve(materialType)

	shippingDate := parseDate(row.First(n.synonyms.ShippingDate...))
	processedDate := parseDate(row.First(n.synonyms.ProcessedDate...))

	orgID, err := resolver.ResolveOrganization(ctx, row.First(n.synonyms.Organization...))
	if err != nil {
		return failure(uniqueID, err)
	}
	locationID, err := resolver.ResolveLocation(ctx, orgID, row.First(n.synonyms.Location...))
	if err != nil {
		return failure(uniqueID, err)
	}
	programID, err := resolver.ResolveProgram(ctx, row.First(n.synonyms.Program...))
	if err != nil {
		return failure(uniqueID, err)
	}

	return success(domain.ShipmentRecord{
		UniqueID:               uniqueID,
		PackageKey:             packageKey,
		Weight:                 weight,
		ShippingDate:           shippingDate,
		ProcessedDate:          processedDate,
		MaterialType:           materialType,
		MaterialLabel:          mapping.CanonicalLabel,
		IsContamination:        mapping.IsContamination,
		ContaminationType:      mapping.ContaminationType,
		OrganizationID:         orgID,
		LocationID:             locationID,
		ProgramID:              programID,
		HasMissingShippingDate: shippingDate == nil,
		NeedsIdentitySynthesis: synthesized,
		ImportBatch:            importBatch,
		RawPayload:             row.Fields,
	})
}

// parseWeight reads the first weight synonym present and converts to
// pounds. An absent weight reads as zero (the row is then excluded);
// a malformed or negative value is a record-level failure.
func (n *Normalizer) parseWeight(row tabular.RawRow) (float64, error) {
	if raw := row.First(n.synonyms.WeightLb...); raw != "" {
		return parseNonNegative(raw)
	}
	if raw := row.First(n.synonyms.WeightKg...); raw != "" {
		kg, err := parseNonNegative(raw)
		if err != nil {
			return 0, err
		}
		return kg * poundsPerKilogram, nil
	}
	return 0, nil
}

func parseNonNegative(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse weight %q: %w", raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative weight %q", raw)
	}
	return value, nil
}

// parseDate tries the known layouts. Unparseable or absent dates yield
// nil; a date parse failure is never a record-level error.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

func bestIdentifier(identifier string, row tabular.RawRow) string {
	if identifier != "" {
		return identifier
	}
	for _, column := range row.Columns {
		if value := row.Fields[column]; value != "" {
			return value
		}
	}
	return "unknown"
}
