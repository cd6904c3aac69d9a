package registry

import (
	"testing"

	"go.uber.org/zap"
)

func baseRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(zap.NewNop())
	if err := r.Add(Entity{Original: "Acme Corp", Alias: "Org X", Type: TypeOrganization}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(Entity{Original: "John Smith", Alias: "Person A", Type: TypePerson, Variations: []string{"Johnny"}}); err != nil {
		t.Fatal(err)
	}
	return r
}

func incomingRegistry(t *testing.T) *Registry {
	t.Helper()
	in := New(zap.NewNop())
	if err := in.Add(Entity{Original: "Acme Corp", Alias: "Organization X", Type: TypeOrganization}); err != nil {
		t.Fatal(err)
	}
	if err := in.Add(Entity{Original: "Jane Roe", Alias: "Person B", Type: TypePerson}); err != nil {
		t.Fatal(err)
	}
	return in
}

func TestMergeSkip(t *testing.T) {
	r := baseRegistry(t)

	result, err := r.Merge(incomingRegistry(t), MergeSkip)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if result.Added != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want Added 1, Skipped 1", result)
	}
	if len(result.Conflicts) != 1 {
		t.Errorf("Conflicts = %v, want one note", result.Conflicts)
	}

	e, _ := r.Lookup("Acme Corp")
	if e.Alias != "Org X" {
		t.Errorf("skip must keep the existing alias, got %q", e.Alias)
	}
	if _, ok := r.Lookup("Jane Roe"); !ok {
		t.Error("non-colliding entity was not added")
	}
}

func TestMergeOverwrite(t *testing.T) {
	r := baseRegistry(t)

	result, err := r.Merge(incomingRegistry(t), MergeOverwrite)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if result.Added != 1 || result.Overwritten != 1 {
		t.Errorf("result = %+v, want Added 1, Overwritten 1", result)
	}

	e, _ := r.Lookup("Acme Corp")
	if e.Alias != "Organization X" {
		t.Errorf("overwrite must take the incoming alias, got %q", e.Alias)
	}
}

func TestMergeKeepBoth(t *testing.T) {
	r := baseRegistry(t)

	result, err := r.Merge(incomingRegistry(t), MergeKeepBoth)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if result.Added != 1 || result.Renamed != 1 {
		t.Errorf("result = %+v, want Added 1, Renamed 1", result)
	}

	// The existing entity keeps the literal for matching.
	e, _ := r.Lookup("Acme Corp")
	if e.Alias != "Org X" {
		t.Errorf("keep-both must leave the existing owner intact, got alias %q", e.Alias)
	}

	// The incoming mapping survives under a disambiguated original.
	e2, ok := r.Lookup("Acme Corp#2")
	if !ok {
		t.Fatal("disambiguated incoming entity not found")
	}
	if e2.Alias != "Organization X" {
		t.Errorf("incoming alias = %q, want %q", e2.Alias, "Organization X")
	}
}

func TestMergeKeepBothAliasCollision(t *testing.T) {
	r := baseRegistry(t)

	// Same original and alias as the existing entity, but a different
	// variation set, so it is not an identical re-import.
	in := New(zap.NewNop())
	if err := in.Add(Entity{Original: "Acme Corp", Alias: "Org X", Type: TypeOrganization, Variations: []string{"AC Industries"}}); err != nil {
		t.Fatal(err)
	}

	result, err := r.Merge(in, MergeKeepBoth)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if result.Renamed != 1 {
		t.Fatalf("result = %+v, want Renamed 1", result)
	}

	e2, ok := r.Lookup("Acme Corp#2")
	if !ok {
		t.Fatal("renamed entity not found")
	}
	if e2.Alias != "Org X-2" {
		t.Errorf("colliding alias should gain a suffix, got %q", e2.Alias)
	}
	if _, ok := r.Lookup("AC Industries"); !ok {
		t.Error("unclaimed incoming variation should survive the rename")
	}
}

func TestMergeIdenticalIsSkip(t *testing.T) {
	r := baseRegistry(t)

	in := New(zap.NewNop())
	if err := in.Add(Entity{Original: "John Smith", Alias: "Person A", Type: TypePerson, Variations: []string{"Johnny"}}); err != nil {
		t.Fatal(err)
	}

	result, err := r.Merge(in, MergeSkip)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if result.Skipped != 1 || len(result.Conflicts) != 0 {
		t.Errorf("identical re-import should skip silently, got %+v", result)
	}
}

func TestMergeAllOrNothing(t *testing.T) {
	r := baseRegistry(t)
	lenBefore := r.Len()
	revBefore := r.Revision()

	// The second incoming entity reuses an alias owned by a different
	// original; no strategy can resolve that, so the whole merge fails.
	in := New(zap.NewNop())
	if err := in.Add(Entity{Original: "Globex", Alias: "Org G"}); err != nil {
		t.Fatal(err)
	}
	if err := in.Add(Entity{Original: "Initech", Alias: "Person A"}); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Merge(in, MergeSkip); err == nil {
		t.Fatal("merge with an unresolvable alias collision must fail")
	}

	if r.Len() != lenBefore {
		t.Errorf("failed merge mutated the registry: Len %d -> %d", lenBefore, r.Len())
	}
	if r.Revision() != revBefore {
		t.Errorf("failed merge bumped the revision: %s -> %s", revBefore, r.Revision())
	}
	if _, ok := r.Lookup("Globex"); ok {
		t.Error("entity from a failed merge is visible")
	}
}

func TestParseMergeStrategy(t *testing.T) {
	for _, valid := range []string{"skip", "overwrite", "keep-both"} {
		if _, err := ParseMergeStrategy(valid); err != nil {
			t.Errorf("ParseMergeStrategy(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseMergeStrategy("merge"); err == nil {
		t.Error("unknown strategy should fail")
	}
}
