package store

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/registry"
)

func seedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New(zap.NewNop())
	entities := []registry.Entity{
		{Original: "John Smith", Alias: "Person A", Type: registry.TypePerson, Variations: []string{"John", "Johnny"}, Notes: "primary subject"},
		{Original: "Acme Corporation", Alias: "Org A", Type: registry.TypeOrganization},
	}
	for _, e := range entities {
		if err := r.Add(e); err != nil {
			t.Fatalf("Add(%q) failed: %v", e.Original, err)
		}
	}
	return r
}

func TestFileStoreMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "mapping.json"), zap.NewNop())

	reg, err := fs.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d, want empty registry", reg.Len())
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	fs := NewFileStore(path, zap.NewNop())

	if err := fs.Save(seedRegistry(t)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := NewFileStore(path, zap.NewNop()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reloaded.Len())
	}

	ent, ok := reloaded.Lookup("johnny")
	if !ok || ent.Original != "John Smith" || ent.Alias != "Person A" {
		t.Errorf("Lookup(johnny) = %+v, %v", ent, ok)
	}
	if ent.Notes != "primary subject" {
		t.Errorf("Notes = %q", ent.Notes)
	}
}

func TestFileStoreVersionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	if err := os.WriteFile(path, []byte(`{"version":"9.9","entities":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path, zap.NewNop()).Load(); err == nil {
		t.Error("expected error for unsupported mapping version")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path, zap.NewNop()).Load(); err == nil {
		t.Error("expected error for corrupt mapping file")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.csv")

	if err := ExportCSV(seedRegistry(t), path, zap.NewNop()); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	target := registry.New(zap.NewNop())
	result, err := ImportCSV(target, path, registry.MergeSkip, zap.NewNop())
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if result.Added != 2 {
		t.Errorf("Added = %d, want 2", result.Added)
	}

	ent, ok := target.Lookup("john smith")
	if !ok {
		t.Fatal("John Smith not imported")
	}
	if len(ent.Variations) != 2 || ent.Variations[0] != "John" || ent.Variations[1] != "Johnny" {
		t.Errorf("Variations = %v, want both split out of the joined column", ent.Variations)
	}
	if ent.Notes != "primary subject" {
		t.Errorf("Notes = %q", ent.Notes)
	}
}

func TestCSVImportMergeStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.csv")
	if err := ExportCSV(seedRegistry(t), path, zap.NewNop()); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	target := registry.New(zap.NewNop())
	if err := target.Add(registry.Entity{Original: "John Smith", Alias: "Subject One", Type: registry.TypePerson}); err != nil {
		t.Fatal(err)
	}

	result, err := ImportCSV(target, path, registry.MergeOverwrite, zap.NewNop())
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if result.Overwritten != 1 || result.Added != 1 {
		t.Errorf("result = %+v", result)
	}
	ent, ok := target.Lookup("john smith")
	if !ok || ent.Alias != "Person A" {
		t.Errorf("Lookup = %+v, want overwritten alias", ent)
	}
}

func TestCSVImportBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.csv")
	if err := os.WriteFile(path, []byte("Name,Value\nfoo,bar\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ImportCSV(registry.New(zap.NewNop()), path, registry.MergeSkip, zap.NewNop()); err == nil {
		t.Error("expected error for unexpected header")
	}
}
