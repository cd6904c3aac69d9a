package verify

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/match"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/redact"
	"github.com/textveil/textveil/internal/registry"
)

func testSnapshot(t *testing.T) *registry.Snapshot {
	t.Helper()
	r := registry.New(zap.NewNop())
	entities := []registry.Entity{
		{Original: "John Smith", Alias: "Person A", Type: registry.TypePerson, Variations: []string{"Johnny"}},
		{Original: "Acme Corporation", Alias: "Acme Holdings", Type: registry.TypeOrganization},
	}
	for _, e := range entities {
		if err := r.Add(e); err != nil {
			t.Fatalf("Add(%q) failed: %v", e.Original, err)
		}
	}
	return r.Snapshot()
}

func newTestVerifier(t *testing.T, opts Options) *Verifier {
	t.Helper()
	return New(testSnapshot(t), pattern.Default(), opts, zap.NewNop())
}

func TestVerifyCleanDocument(t *testing.T) {
	v := newTestVerifier(t, DefaultOptions())

	report := v.VerifyDocument("doc-1", "Person A spoke with the press.")
	if !report.Pass {
		t.Errorf("clean document must pass: %+v", report.Findings)
	}
	if report.DocumentID != "doc-1" || report.ScannedAt.IsZero() {
		t.Errorf("report metadata wrong: %+v", report)
	}
}

func TestVerifyExactLeak(t *testing.T) {
	v := newTestVerifier(t, DefaultOptions())

	report := v.VerifyDocument("doc-1", "john smith and Johnny were present.")
	if report.Pass {
		t.Fatal("exact leaks must fail verification")
	}
	if len(report.Findings) != 2 {
		t.Fatalf("got %d findings, want 2: %+v", len(report.Findings), report.Findings)
	}
	for _, f := range report.Findings {
		if f.Kind != KindExact {
			t.Errorf("Kind = %s, want exact: %+v", f.Kind, f)
		}
		if f.Source != "john smith" {
			t.Errorf("Source = %q, want normalized entity key", f.Source)
		}
	}
	if report.Findings[0].Text != "john smith" {
		t.Errorf("first finding = %+v, want the case-insensitive original", report.Findings[0])
	}
}

func TestVerifyPartialLeak(t *testing.T) {
	v := newTestVerifier(t, DefaultOptions())

	report := v.VerifyDocument("doc-1", "Mr. Smith declined to comment.")
	if report.Pass {
		t.Fatal("surviving surname must fail verification")
	}
	if len(report.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(report.Findings), report.Findings)
	}
	f := report.Findings[0]
	if f.Kind != KindPartial || f.Text != "Smith" || f.Source != "john smith" {
		t.Errorf("finding = %+v", f)
	}
}

func TestVerifyPartialSuppressedInsideExact(t *testing.T) {
	v := newTestVerifier(t, DefaultOptions())

	// The full original leaked; report it once as exact, not again as the
	// partial "Smith" inside it.
	report := v.VerifyDocument("doc-1", "John Smith declined.")
	if len(report.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(report.Findings), report.Findings)
	}
	if report.Findings[0].Kind != KindExact {
		t.Errorf("Kind = %s, want exact", report.Findings[0].Kind)
	}
}

func TestVerifyMinPartialLength(t *testing.T) {
	// "John" is 4 characters: reported at the default threshold, silent at 5.
	long := newTestVerifier(t, Options{MinPartialLength: 5, CheckPatterns: true})
	report := long.VerifyDocument("doc-1", "John waved.")
	if !report.Pass {
		t.Errorf("sub-token below threshold must not be reported: %+v", report.Findings)
	}

	short := newTestVerifier(t, DefaultOptions())
	report = short.VerifyDocument("doc-1", "John waved.")
	if report.Pass || len(report.Findings) != 1 || report.Findings[0].Kind != KindPartial {
		t.Errorf("report = %+v, want one partial finding", report)
	}
}

func TestVerifyAliasWordsNotPartials(t *testing.T) {
	v := newTestVerifier(t, DefaultOptions())

	// "Acme" is both a word of the original and of the alias "Acme
	// Holdings": on its own it is legitimate output.
	report := v.VerifyDocument("doc-1", "Acme announced earnings.")
	if !report.Pass {
		t.Errorf("alias word must not be reported as a leak: %+v", report.Findings)
	}
}

func TestVerifyPatternLeak(t *testing.T) {
	text := "contact leak@example.com now"

	v := newTestVerifier(t, DefaultOptions())
	report := v.VerifyDocument("doc-1", text)
	if report.Pass || len(report.Findings) != 1 {
		t.Fatalf("report = %+v, want one pattern finding", report)
	}
	f := report.Findings[0]
	if f.Kind != KindPattern || f.Source != "email" || f.Text != "leak@example.com" {
		t.Errorf("finding = %+v", f)
	}

	off := newTestVerifier(t, Options{MinPartialLength: 4, CheckPatterns: false})
	if report := off.VerifyDocument("doc-1", text); !report.Pass {
		t.Errorf("pattern pass disabled, got %+v", report.Findings)
	}
}

func TestVerifyFindingsOrdered(t *testing.T) {
	v := newTestVerifier(t, DefaultOptions())

	report := v.VerifyDocument("doc-1", "Smith emailed leak@example.com about John Smith.")
	prev := -1
	for _, f := range report.Findings {
		if f.Start < prev {
			t.Fatalf("findings out of order: %+v", report.Findings)
		}
		prev = f.Start
	}
	if len(report.Findings) != 3 {
		t.Errorf("got %d findings, want 3: %+v", len(report.Findings), report.Findings)
	}
}

func consistentRecord(doc, source, replacement string) *redact.Record {
	return &redact.Record{
		RunID:      "run-1",
		DocumentID: doc,
		Technique:  redact.TechniqueConsistent,
		Substitutions: []redact.Substitution{
			{Matched: source, Replacement: replacement, Source: source, Kind: match.KindEntity},
		},
		CreatedAt: time.Now(),
	}
}

func TestCheckConsistency(t *testing.T) {
	t.Run("Stable", func(t *testing.T) {
		records := []*redact.Record{
			consistentRecord("doc-1", "John Smith", "Person A"),
			consistentRecord("doc-2", "John Smith", "Person A"),
		}
		if got := CheckConsistency(records); got != nil {
			t.Errorf("stable aliases flagged: %+v", got)
		}
	})

	t.Run("Drift", func(t *testing.T) {
		records := []*redact.Record{
			consistentRecord("doc-1", "John Smith", "Person A"),
			consistentRecord("doc-2", "John Smith", "Person B"),
		}
		got := CheckConsistency(records)
		if len(got) != 1 {
			t.Fatalf("got %d inconsistencies, want 1: %+v", len(got), got)
		}
		inc := got[0]
		if inc.Entity != "John Smith" {
			t.Errorf("Entity = %q", inc.Entity)
		}
		if len(inc.Aliases) != 2 || inc.Aliases[0] != "Person A" || inc.Aliases[1] != "Person B" {
			t.Errorf("Aliases = %v", inc.Aliases)
		}
		if len(inc.Documents) != 2 {
			t.Errorf("Documents = %v", inc.Documents)
		}
	})

	t.Run("RandomExcluded", func(t *testing.T) {
		a := consistentRecord("doc-1", "John Smith", "PERSON-AAAA1111")
		a.Technique = redact.TechniqueRandom
		a.RandomAliases = map[string]string{"john smith": "PERSON-AAAA1111"}
		b := consistentRecord("doc-2", "John Smith", "PERSON-BBBB2222")
		b.Technique = redact.TechniqueRandom
		b.RandomAliases = map[string]string{"john smith": "PERSON-BBBB2222"}

		if got := CheckConsistency([]*redact.Record{a, b}); got != nil {
			t.Errorf("random records must be excluded: %+v", got)
		}
	})
}
