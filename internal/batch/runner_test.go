package batch

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/redact"
	"github.com/textveil/textveil/internal/registry"
	"github.com/textveil/textveil/internal/verify"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New(zap.NewNop())
	entities := []registry.Entity{
		{Original: "John Smith", Alias: "Person A", Type: registry.TypePerson, Variations: []string{"John"}},
		{Original: "Acme Corporation", Alias: "Org A", Type: registry.TypeOrganization},
	}
	for _, e := range entities {
		if err := r.Add(e); err != nil {
			t.Fatalf("Add(%q) failed: %v", e.Original, err)
		}
	}
	return r
}

func TestRunPreservesOrder(t *testing.T) {
	reg := testRegistry(t)
	runner := NewRunner(reg, pattern.Default(), nil, Config{
		Workers:    3,
		Technique:  redact.TechniqueHybrid,
		Verify:     true,
		VerifyOpts: verify.DefaultOptions(),
	}, zap.NewNop())

	docs := []Document{
		{ID: "doc-1", Text: "John Smith joined Acme Corporation."},
		{ID: "doc-2", Text: "John wrote to jane@example.com."},
		{ID: "doc-3", Text: "Nothing sensitive here."},
	}
	report := runner.Run(context.Background(), docs)

	if len(report.Results) != len(docs) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(docs))
	}
	for i, res := range report.Results {
		if res.DocumentID != docs[i].ID {
			t.Errorf("result %d is %q, want %q", i, res.DocumentID, docs[i].ID)
		}
		if res.Err != nil {
			t.Errorf("document %s failed: %v", res.DocumentID, res.Err)
		}
		if res.Record == nil || res.Report == nil {
			t.Errorf("document %s missing record or report", res.DocumentID)
		}
	}

	if report.Results[0].RedactedText != "Person A joined Org A." {
		t.Errorf("doc-1 = %q", report.Results[0].RedactedText)
	}
	if report.Results[1].RedactedText != "Person A wrote to [EMAIL-REDACTED-001]." {
		t.Errorf("doc-2 = %q", report.Results[1].RedactedText)
	}
	if report.Results[2].RedactedText != docs[2].Text {
		t.Errorf("doc-3 = %q", report.Results[2].RedactedText)
	}

	if !report.Pass || report.Failed != 0 {
		t.Errorf("Pass = %v, Failed = %d", report.Pass, report.Failed)
	}
	if report.Summary.Documents != 3 || report.Summary.TotalSubstitutions != 4 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.RunID == "" {
		t.Error("RunID not set")
	}
	if report.RegistryRevision != reg.Revision() {
		t.Errorf("RegistryRevision = %q, want %q", report.RegistryRevision, reg.Revision())
	}
	if report.Inconsistencies != nil {
		t.Errorf("unexpected inconsistencies: %+v", report.Inconsistencies)
	}
}

func TestRunVerificationFailure(t *testing.T) {
	reg := testRegistry(t)

	// Consistent mode leaves the email in place; the verifier's pattern
	// pass reports it, failing the run without failing the document.
	runner := NewRunner(reg, pattern.Default(), nil, Config{
		Technique:  redact.TechniqueConsistent,
		Verify:     true,
		VerifyOpts: verify.DefaultOptions(),
	}, zap.NewNop())

	report := runner.Run(context.Background(), []Document{
		{ID: "doc-1", Text: "John Smith mailed jane@example.com."},
	})

	if report.Failed != 0 {
		t.Errorf("Failed = %d, want 0", report.Failed)
	}
	if report.Pass {
		t.Error("run must not pass with a pattern leak in output")
	}
	res := report.Results[0]
	if res.Report == nil || res.Report.Pass {
		t.Errorf("document report = %+v, want a failing report", res.Report)
	}
	if len(res.Report.Findings) != 1 || res.Report.Findings[0].Kind != verify.KindPattern {
		t.Errorf("findings = %+v", res.Report.Findings)
	}
}

func TestRunWithoutVerification(t *testing.T) {
	reg := testRegistry(t)
	runner := NewRunner(reg, pattern.Default(), nil, Config{
		Technique: redact.TechniqueConsistent,
	}, zap.NewNop())

	report := runner.Run(context.Background(), []Document{
		{ID: "doc-1", Text: "John Smith called."},
	})

	if !report.Pass {
		t.Error("run should pass")
	}
	if report.Results[0].Report != nil {
		t.Errorf("verification disabled, got report %+v", report.Results[0].Report)
	}
}

func TestRunCancelled(t *testing.T) {
	reg := testRegistry(t)
	runner := NewRunner(reg, pattern.Default(), nil, Config{
		Workers:   2,
		Technique: redact.TechniqueConsistent,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs := []Document{
		{ID: "doc-1", Text: "John Smith"},
		{ID: "doc-2", Text: "Acme Corporation"},
		{ID: "doc-3", Text: "John"},
	}
	report := runner.Run(ctx, docs)

	if report.Pass {
		t.Error("cancelled run must not pass")
	}
	if report.Failed != len(docs) {
		t.Errorf("Failed = %d, want %d", report.Failed, len(docs))
	}
	for i, res := range report.Results {
		if res.DocumentID != docs[i].ID {
			t.Errorf("result %d is %q, want %q", i, res.DocumentID, docs[i].ID)
		}
		if res.Err == nil {
			t.Errorf("document %s should carry the cancellation error", res.DocumentID)
		}
	}
}

func TestRunEmptyDocumentID(t *testing.T) {
	reg := testRegistry(t)
	runner := NewRunner(reg, pattern.Default(), nil, Config{
		Workers:   2,
		Technique: redact.TechniqueConsistent,
	}, zap.NewNop())

	// Callers may omit document IDs; processed results must survive
	// assembly rather than being mistaken for undispatched slots.
	docs := []Document{
		{Text: "John Smith called."},
		{Text: "Acme Corporation replied."},
	}
	report := runner.Run(context.Background(), docs)

	if !report.Pass || report.Failed != 0 {
		t.Fatalf("Pass = %v, Failed = %d", report.Pass, report.Failed)
	}
	for i, res := range report.Results {
		if res.Err != nil {
			t.Errorf("document %d failed: %v", i, res.Err)
		}
		if res.Record == nil {
			t.Errorf("document %d missing record", i)
		}
	}
	if report.Results[0].RedactedText != "Person A called." {
		t.Errorf("doc 0 = %q", report.Results[0].RedactedText)
	}
	if report.Results[1].RedactedText != "Org A replied." {
		t.Errorf("doc 1 = %q", report.Results[1].RedactedText)
	}
}

func TestRunRandomTechnique(t *testing.T) {
	reg := testRegistry(t)
	runner := NewRunner(reg, pattern.Default(), nil, Config{
		Technique: redact.TechniqueRandom,
	}, zap.NewNop())

	report := runner.Run(context.Background(), []Document{
		{ID: "doc-1", Text: "John Smith called."},
		{ID: "doc-2", Text: "John Smith wrote back."},
	})

	if !report.Pass || report.Failed != 0 {
		t.Fatalf("Pass = %v, Failed = %d", report.Pass, report.Failed)
	}
	a := report.Results[0].Record.RandomAliases["john smith"]
	b := report.Results[1].Record.RandomAliases["john smith"]
	if a == "" || b == "" {
		t.Fatalf("random aliases missing: %q, %q", a, b)
	}
	if a == b {
		t.Errorf("documents must not share random identifiers: %q", a)
	}
}
