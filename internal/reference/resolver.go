package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/shipflow/internal/domain"
	"github.com/rpattn/shipflow/internal/repository"

	"github.com/google/uuid"
)

// Snapshot is the material classification lookup built once per batch.
// It is immutable after construction and safe to pass by value to every
// normalization call.
type Snapshot struct {
	entries  map[string]domain.MaterialMapping
	fallback domain.MaterialMapping
}

// NewSnapshot indexes mappings by case-normalized source category.
func NewSnapshot(mappings []domain.MaterialMapping) Snapshot {
	entries := make(map[string]domain.MaterialMapping, len(mappings))
	for _, mapping := range mappings {
		key := normalizeKey(mapping.SourceCategory)
		if key == "" {
			continue
		}
		entries[key] = mapping
	}
	return Snapshot{entries: entries, fallback: domain.DefaultMaterialMapping()}
}

// LoadSnapshot reads the full mapping table. The table is small enough
// to load wholesale; failure here is a batch-level error.
func LoadSnapshot(ctx context.Context, repo repository.ReferenceRepository) (Snapshot, error) {
	mappings, err := repo.ListMaterialMappings(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load material mappings: %w", err)
	}
	return NewSnapshot(mappings), nil
}

// Resolve classifies a source category. Unmapped categories fall back
// to the default "Other" entry so every record stays classifiable.
func (s Snapshot) Resolve(sourceCategory string) domain.MaterialMapping {
	if entry, ok := s.entries[normalizeKey(sourceCategory)]; ok {
		return entry
	}
	return s.fallback
}

// Len reports how many categories the snapshot maps.
func (s Snapshot) Len() int {
	return len(s.entries)
}

func normalizeKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Resolver performs best-effort foreign-key lookups by name or code.
// Results, including misses, are cached for the life of one batch run;
// the run is strictly sequential so the maps need no locking.
type Resolver struct {
	repo repository.ReferenceRepository

	organizations map[string]*uuid.UUID
	locations     map[string]*uuid.UUID
	programs      map[string]*uuid.UUID
}

// NewResolver builds a resolver with empty caches.
func NewResolver(repo repository.ReferenceRepository) *Resolver {
	return &Resolver{
		repo:          repo,
		organizations: make(map[string]*uuid.UUID),
		locations:     make(map[string]*uuid.UUID),
		programs:      make(map[string]*uuid.UUID),
	}
}

// ResolveOrganization returns the organization id for a name or code,
// or nil when nothing matches.
func (r *Resolver) ResolveOrganization(ctx context.Context, nameOrCode string) (*uuid.UUID, error) {
	key := normalizeKey(nameOrCode)
	if key == "" {
		return nil, nil
	}
	if cached, ok := r.organizations[key]; ok {
		return cached, nil
	}

	org, err := r.repo.FindOrganization(ctx, nameOrCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up organization %q: %w", nameOrCode, err)
	}

	var id *uuid.UUID
	if org != nil {
		value := org.ID
		id = &value
	}
	r.organizations[key] = id
	return id, nil
}

// ResolveLocation returns the location id scoped to an organization.
// An unresolved organization short-circuits to nil without a lookup.
func (r *Resolver) ResolveLocation(ctx context.Context, organizationID *uuid.UUID, nameOrCode string) (*uuid.UUID, error) {
	if organizationID == nil {
		return nil, nil
	}
	key := normalizeKey(nameOrCode)
	if key == "" {
		return nil, nil
	}
	cacheKey := organizationID.String() + "/" + key
	if cached, ok := r.locations[cacheKey]; ok {
		return cached, nil
	}

	location, err := r.repo.FindLocation(ctx, *organizationID, nameOrCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up location %q: %w", nameOrCode, err)
	}

	var id *uuid.UUID
	if location != nil {
		value := location.ID
		id = &value
	}
	r.locations[cacheKey] = id
	return id, nil
}

// ResolveProgram returns the program id for a name or code, or nil
// when nothing matches.
func (r *Resolver) ResolveProgram(ctx context.Context, nameOrCode string) (*uuid.UUID, error) {
	key := normalizeKey(nameOrCode)
	if key == "" {
		return nil, nil
	}
	if cached, ok := r.programs[key]; ok {
		return cached, nil
	}

	program, err := r.repo.FindProgram(ctx, nameOrCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up program %q: %w", nameOrCode, err)
	}

	var id *uuid.UUID
	if program != nil {
		value := program.ID
		id = &value
	}
	r.programs[key] = id
	return id, nil
}
