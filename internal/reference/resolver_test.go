package reference

import (
	"context"
	"testing"

	"github.com/rpattn/shipflow/internal/domain"
	"github.com/rpattn/shipflow/internal/repository"

	"github.com/google/uuid"
)

func TestSnapshotResolvesCaseInsensitively(t *testing.T) {
	contamination := "film"
	snapshot := NewSnapshot([]domain.MaterialMapping{
		{SourceCategory: "Mixed-Plastic", CanonicalLabel: "Plastic Film", IsContamination: true, ContaminationType: &contamination},
	})

	entry := snapshot.Resolve("MIXED-plastic")
	if entry.CanonicalLabel != "Plastic Film" {
		t.Fatalf("expected case-insensitive hit, got %q", entry.CanonicalLabel)
	}
	if !entry.IsContamination || entry.ContaminationType == nil || *entry.ContaminationType != "film" {
		t.Fatalf("unexpected contamination classification: %+v", entry)
	}
}

func TestSnapshotMissFallsBackToOther(t *testing.T) {
	snapshot := NewSnapshot(nil)

	entry := snapshot.Resolve("unobtainium")
	if entry.CanonicalLabel != domain.DefaultMaterialLabel {
		t.Fatalf("expected %q, got %q", domain.DefaultMaterialLabel, entry.CanonicalLabel)
	}
	if entry.IsContamination {
		t.Fatalf("fallback entry must not be contamination")
	}
}

func TestResolveOrganizationCachesLookups(t *testing.T) {
	orgID := uuid.New()
	repo := &stubReferenceRepo{
		organizations: map[string]domain.Organization{"acmeco": {ID: orgID, Name: "AcmeCo"}},
	}
	resolver := NewResolver(repo)

	for i := 0; i < 3; i++ {
		id, err := resolver.ResolveOrganization(context.Background(), "AcmeCo")
		if err != nil {
			t.Fatalf("resolve returned error: %v", err)
		}
		if id == nil || *id != orgID {
			t.Fatalf("expected %s, got %v", orgID, id)
		}
	}
	if repo.organizationLookups != 1 {
		t.Fatalf("expected 1 repository lookup, got %d", repo.organizationLookups)
	}
}

func TestResolveOrganizationMissIsNilNotError(t *testing.T) {
	repo := &stubReferenceRepo{}
	resolver := NewResolver(repo)

	id, err := resolver.ResolveOrganization(context.Background(), "Nowhere Inc")
	if err != nil {
		t.Fatalf("miss must not be an error, got %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil on miss, got %v", id)
	}

	// Misses are cached too.
	if _, err := resolver.ResolveOrganization(context.Background(), "Nowhere Inc"); err != nil {
		t.Fatalf("cached miss returned error: %v", err)
	}
	if repo.organizationLookups != 1 {
		t.Fatalf("expected negative caching, got %d lookups", repo.organizationLookups)
	}
}

func TestResolveLocationShortCircuitsWithoutOrganization(t *testing.T) {
	repo := &stubReferenceRepo{}
	resolver := NewResolver(repo)

	id, err := resolver.ResolveLocation(context.Background(), nil, "Downtown")
	if err != nil {
		t.Fatalf("short-circuit must not error: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil location without organization")
	}
	if repo.locationLookups != 0 {
		t.Fatalf("expected no repository lookup, got %d", repo.locationLookups)
	}
}

func TestResolveLocationScopedToOrganization(t *testing.T) {
	orgID := uuid.New()
	locationID := uuid.New()
	repo := &stubReferenceRepo{
		locations: map[string]domain.Location{
			orgID.String() + "/downtown": {ID: locationID, OrganizationID: orgID, Name: "Downtown"},
		},
	}
	resolver := NewResolver(repo)

	id, err := resolver.ResolveLocation(context.Background(), &orgID, "Downtown")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if id == nil || *id != locationID {
		t.Fatalf("expected %s, got %v", locationID, id)
	}

	otherOrg := uuid.New()
	id, err = resolver.ResolveLocation(context.Background(), &otherOrg, "Downtown")
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if id != nil {
		t.Fatalf("expected miss for a different organization scope")
	}
}

type stubReferenceRepo struct {
	mappings      []domain.MaterialMapping
	organizations map[string]domain.Organization
	locations     map[string]domain.Location
	programs      map[string]domain.Program

	organizationLookups int
	locationLookups     int
	programLookups      int
}

func (s *stubReferenceRepo) ListMaterialMappings(ctx context.Context) ([]domain.MaterialMapping, error) {
	return s.mappings, nil
}

func (s *stubReferenceRepo) FindOrganization(ctx context.Context, nameOrCode string) (*domain.Organization, error) {
	s.organizationLookups++
	if org, ok := s.organizations[normalizeKey(nameOrCode)]; ok {
		return &org, nil
	}
	return nil, nil
}

func (s *stubReferenceRepo) FindLocation(ctx context.Context, organizationID uuid.UUID, nameOrCode string) (*domain.Location, error) {
	s.locationLookups++
	if location, ok := s.locations[organizationID.String()+"/"+normalizeKey(nameOrCode)]; ok {
		return &location, nil
	}
	return nil, nil
}

func (s *stubReferenceRepo) FindProgram(ctx context.Context, nameOrCode string) (*domain.Program, error) {
	s.programLookups++
	if program, ok := s.programs[normalizeKey(nameOrCode)]; ok {
		return &program, nil
	}
	return nil, nil
}

var _ repository.ReferenceRepository = (*stubReferenceRepo)(nil)
