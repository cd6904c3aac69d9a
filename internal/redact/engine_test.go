package redact

import (
	"errors"
	"regexp"
	"testing"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/config"
	"github.com/textveil/textveil/internal/match"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/registry"
)

func testSnapshot(t *testing.T) *registry.Snapshot {
	t.Helper()
	r := registry.New(zap.NewNop())
	entities := []registry.Entity{
		{Original: "John Smith", Alias: "Person A", Type: registry.TypePerson, Variations: []string{"John"}},
		{Original: "Acme Corporation", Alias: "Org A", Type: registry.TypeOrganization, Variations: []string{"Acme"}},
	}
	for _, e := range entities {
		if err := r.Add(e); err != nil {
			t.Fatalf("Add(%q) failed: %v", e.Original, err)
		}
	}
	return r.Snapshot()
}

func redactText(t *testing.T, snap *registry.Snapshot, catalog *pattern.Catalog, rc *RunContext, docID, text string) (string, *Record) {
	t.Helper()
	m := match.New(snap, catalog, zap.NewNop())
	engine := NewEngine(snap, catalog, zap.NewNop())
	redacted, record, err := engine.Redact(docID, text, m.Scan(text), rc)
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}
	return redacted, record
}

func TestRedactConsistent(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniqueConsistent, false)

	text := "John Smith of Acme Corporation wrote to jane@example.com."
	redacted, record := redactText(t, snap, pattern.Default(), rc, "doc-1", text)

	want := "Person A of Org A wrote to jane@example.com."
	if redacted != want {
		t.Errorf("redacted = %q, want %q", redacted, want)
	}
	if len(record.Substitutions) != 2 {
		t.Fatalf("got %d substitutions, want 2", len(record.Substitutions))
	}
	if record.Substitutions[0].Source != "John Smith" {
		t.Errorf("Source = %q, want the exact-case original", record.Substitutions[0].Source)
	}
	if record.RandomAliases != nil {
		t.Errorf("consistent runs must not issue random aliases: %v", record.RandomAliases)
	}
}

func TestRedactPatternOnly(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniquePatternOnly, false)

	text := "John Smith wrote to jane@example.com."
	redacted, record := redactText(t, snap, pattern.Default(), rc, "doc-1", text)

	want := "John Smith wrote to [EMAIL-REDACTED-001]."
	if redacted != want {
		t.Errorf("redacted = %q, want %q", redacted, want)
	}
	for _, s := range record.Substitutions {
		if s.Kind != match.KindPattern {
			t.Errorf("pattern-only run produced %s substitution %+v", s.Kind, s)
		}
	}
}

func TestRedactHybridNumbering(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniqueHybrid, false)

	text := "John mailed a@x.com, then b@y.com, then A@X.COM again."
	redacted, _ := redactText(t, snap, pattern.Default(), rc, "doc-1", text)

	want := "Person A mailed [EMAIL-REDACTED-001], then [EMAIL-REDACTED-002], then [EMAIL-REDACTED-001] again."
	if redacted != want {
		t.Errorf("redacted = %q, want %q", redacted, want)
	}
}

func TestRedactNumberingResetsPerDocument(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniqueHybrid, false)

	first, _ := redactText(t, snap, pattern.Default(), rc, "doc-1", "mail a@x.com")
	second, _ := redactText(t, snap, pattern.Default(), rc, "doc-2", "mail b@y.com")

	if first != "mail [EMAIL-REDACTED-001]" {
		t.Errorf("doc-1 = %q", first)
	}
	if second != "mail [EMAIL-REDACTED-001]" {
		t.Errorf("doc-2 numbering must restart at 001, got %q", second)
	}
}

func TestRedactGlobalScopeNumbering(t *testing.T) {
	snap := testSnapshot(t)
	catalog, err := pattern.Load(config.PatternsConfig{
		Enabled: []string{},
		Custom: []config.PatternRule{
			{Name: "ticket", Expr: `\bTKT-\d{4}\b`, Scope: "global"},
		},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rc := NewRunContext(TechniqueHybrid, false)

	first, _ := redactText(t, snap, catalog, rc, "doc-1", "see TKT-1000")
	second, _ := redactText(t, snap, catalog, rc, "doc-2", "see TKT-2000 and TKT-1000")

	if first != "see [TICKET-REDACTED-001]" {
		t.Errorf("doc-1 = %q", first)
	}
	want := "see [TICKET-REDACTED-002] and [TICKET-REDACTED-001]"
	if second != want {
		t.Errorf("doc-2 = %q, want %q (numbering shared across the run)", second, want)
	}
}

func TestRedactRandom(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniqueRandom, false)

	text := "John Smith met John at Acme Corporation."
	redacted, record := redactText(t, snap, pattern.Default(), rc, "doc-1", text)

	if len(record.RandomAliases) != 2 {
		t.Fatalf("RandomAliases = %v, want one id per entity", record.RandomAliases)
	}
	personID := record.RandomAliases["john smith"]
	orgID := record.RandomAliases["acme corporation"]
	if !regexp.MustCompile(`^PERSON-[A-Z0-9]{8}$`).MatchString(personID) {
		t.Errorf("person id = %q", personID)
	}
	if !regexp.MustCompile(`^ORG-[A-Z0-9]{8}$`).MatchString(orgID) {
		t.Errorf("org id = %q", orgID)
	}

	// Both mentions of the person resolve to the same id within the
	// document.
	for _, s := range record.Substitutions {
		if s.Source == "John Smith" && s.Replacement != personID {
			t.Errorf("replacement %q differs from issued id %q", s.Replacement, personID)
		}
	}
	if redacted == text {
		t.Error("text unchanged")
	}
}

func TestRedactHybridRandom(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniqueHybrid, true)

	redacted, record := redactText(t, snap, pattern.Default(), rc, "doc-1", "John mailed a@x.com")

	if len(record.RandomAliases) != 1 {
		t.Fatalf("RandomAliases = %v, want 1 entry", record.RandomAliases)
	}
	if !regexp.MustCompile(`^PERSON-[A-Z0-9]{8} mailed \[EMAIL-REDACTED-001\]$`).MatchString(redacted) {
		t.Errorf("redacted = %q", redacted)
	}
}

func TestRedactUnknownEntity(t *testing.T) {
	snap := testSnapshot(t)
	engine := NewEngine(snap, pattern.Default(), zap.NewNop())
	rc := NewRunContext(TechniqueConsistent, false)

	matches := []match.Match{
		{Start: 0, End: 5, Text: "Ghost", Kind: match.KindEntity, Entity: "ghost"},
	}
	_, _, err := engine.Redact("doc-1", "Ghost text", matches, rc)

	var incErr *RegistryInconsistencyError
	if !errors.As(err, &incErr) {
		t.Fatalf("err = %v, want RegistryInconsistencyError", err)
	}
	if incErr.Literal != "Ghost" || incErr.DocumentID != "doc-1" {
		t.Errorf("error fields = %+v", incErr)
	}
}

func TestRedactRecordMetadata(t *testing.T) {
	snap := testSnapshot(t)
	rc := NewRunContext(TechniqueConsistent, false)

	_, record := redactText(t, snap, pattern.Default(), rc, "doc-7", "John Smith called.")

	if record.RunID != rc.RunID {
		t.Errorf("RunID = %q, want %q", record.RunID, rc.RunID)
	}
	if record.DocumentID != "doc-7" {
		t.Errorf("DocumentID = %q", record.DocumentID)
	}
	if record.RegistryRevision != snap.Revision() {
		t.Errorf("RegistryRevision = %q, want %q", record.RegistryRevision, snap.Revision())
	}
	if record.Technique != TechniqueConsistent {
		t.Errorf("Technique = %q", record.Technique)
	}
	if record.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestParseTechnique(t *testing.T) {
	for _, s := range []string{"consistent", "random", "pattern-only", "hybrid"} {
		if _, err := ParseTechnique(s); err != nil {
			t.Errorf("ParseTechnique(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseTechnique("vigenere"); err == nil {
		t.Error("expected error for unknown technique")
	}
}
