// Package batch redacts a set of documents against one registry snapshot
// using a fixed-size worker pool. Every document in a run sees the same
// snapshot revision, documents never share mutable state except the run
// context's global pattern counters, and a failure in one document never
// aborts the others.
package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/cache"
	"github.com/textveil/textveil/internal/match"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/redact"
	"github.com/textveil/textveil/internal/registry"
	"github.com/textveil/textveil/internal/verify"
)

// Document is one unit of batch input.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Result is the per-document outcome. Err is set when the document failed;
// the remaining fields are only meaningful when Err is nil.
type Result struct {
	DocumentID   string         `json:"document_id"`
	RedactedText string         `json:"redacted_text"`
	Record       *redact.Record `json:"record,omitempty"`
	Report       *verify.Report `json:"report,omitempty"`
	FromCache    bool           `json:"from_cache,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Err          error          `json:"-"`
}

// RunReport aggregates a finished run.
type RunReport struct {
	RunID            string                 `json:"run_id"`
	RegistryRevision string                 `json:"registry_revision"`
	Technique        redact.Technique       `json:"technique"`
	Results          []Result               `json:"results"`
	Summary          redact.RunSummary      `json:"summary"`
	Inconsistencies  []verify.Inconsistency `json:"inconsistencies,omitempty"`
	Pass             bool                   `json:"pass"`
	Failed           int                    `json:"failed"`
	Elapsed          time.Duration          `json:"elapsed"`
}

// Config tunes a runner.
type Config struct {
	Workers      int
	Technique    redact.Technique
	HybridRandom bool
	Verify       bool
	VerifyOpts   verify.Options
}

// Runner executes redaction runs. It snapshots the registry once per run,
// so concurrent registry writes never tear a batch.
type Runner struct {
	reg     *registry.Registry
	catalog *pattern.Catalog
	cache   *cache.RedactionCache // nil when caching is disabled
	cfg     Config
	logger  *zap.Logger
}

// NewRunner builds a runner. cache may be nil.
func NewRunner(reg *registry.Registry, catalog *pattern.Catalog, c *cache.RedactionCache, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{reg: reg, catalog: catalog, cache: c, cfg: cfg, logger: logger}
}

// Run redacts all documents and returns the aggregate report. Input order is
// preserved in Results. Cancelling ctx stops workers between documents; the
// report then covers the documents already processed, with the rest marked
// as failed with ctx.Err.
func (r *Runner) Run(ctx context.Context, docs []Document) *RunReport {
	start := time.Now()

	snap := r.reg.Snapshot()
	matcher := match.New(snap, r.catalog, r.logger)
	engine := redact.NewEngine(snap, r.catalog, r.logger)
	rc := redact.NewRunContext(r.cfg.Technique, r.cfg.HybridRandom)

	var verifier *verify.Verifier
	if r.cfg.Verify {
		verifier = verify.New(snap, r.catalog, r.cfg.VerifyOpts, r.logger)
	}

	// Random identifiers are minted fresh per document, so cached output
	// from an earlier run would break that guarantee.
	useCache := r.cache != nil && r.cfg.Technique != redact.TechniqueRandom &&
		!(r.cfg.Technique == redact.TechniqueHybrid && r.cfg.HybridRandom)

	r.logger.Info("Batch run started",
		zap.String("run_id", rc.RunID),
		zap.String("revision", snap.Revision()),
		zap.String("technique", string(r.cfg.Technique)),
		zap.Int("documents", len(docs)),
		zap.Int("workers", r.cfg.Workers),
		zap.Bool("verify", r.cfg.Verify),
		zap.Bool("cache", useCache),
	)

	results := make([]Result, len(docs))
	done := make([]bool, len(docs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.processOne(ctx, docs[i], matcher, engine, rc, verifier, useCache)
				done[i] = true
			}
		}()
	}

dispatch:
	for i := range docs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	report := &RunReport{
		RunID:            rc.RunID,
		RegistryRevision: snap.Revision(),
		Technique:        r.cfg.Technique,
		Results:          results,
		Pass:             true,
		Elapsed:          time.Since(start),
	}

	var records []*redact.Record
	for i := range results {
		if !done[i] {
			results[i] = Result{DocumentID: docs[i].ID, Err: ctx.Err()}
		}
		if results[i].Err != nil {
			report.Failed++
			report.Pass = false
			continue
		}
		if results[i].Record != nil {
			records = append(records, results[i].Record)
		}
		if results[i].Report != nil && !results[i].Report.Pass {
			report.Pass = false
		}
	}
	report.Summary = redact.Summarize(records)

	if r.cfg.Verify {
		report.Inconsistencies = verify.CheckConsistency(records)
		if len(report.Inconsistencies) > 0 {
			report.Pass = false
		}
	}

	r.logger.Info("Batch run finished",
		zap.String("run_id", rc.RunID),
		zap.Int("documents", len(docs)),
		zap.Int("failed", report.Failed),
		zap.Int("substitutions", report.Summary.TotalSubstitutions),
		zap.Int("inconsistencies", len(report.Inconsistencies)),
		zap.Bool("pass", report.Pass),
		zap.Duration("elapsed", report.Elapsed),
	)

	return report
}

func (r *Runner) processOne(ctx context.Context, doc Document, matcher *match.Matcher, engine *redact.Engine, rc *redact.RunContext, verifier *verify.Verifier, useCache bool) Result {
	begin := time.Now()
	res := Result{DocumentID: doc.ID}

	if err := ctx.Err(); err != nil {
		res.Err = err
		res.Duration = time.Since(begin)
		return res
	}

	if useCache {
		if cached, ok := r.cache.Get(ctx, engine.Snapshot().Revision(), string(rc.Technique), doc.Text); ok {
			res.RedactedText = cached
			res.FromCache = true
			if verifier != nil {
				res.Report = verifier.VerifyDocument(doc.ID, cached)
			}
			res.Duration = time.Since(begin)
			return res
		}
	}

	matches := matcher.Scan(doc.Text)
	redacted, record, err := engine.Redact(doc.ID, doc.Text, matches, rc)
	if err != nil {
		r.logger.Warn("Document redaction failed",
			zap.String("run_id", rc.RunID),
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
		res.Err = err
		res.Duration = time.Since(begin)
		return res
	}

	res.RedactedText = redacted
	res.Record = record

	if useCache {
		r.cache.Store(ctx, engine.Snapshot().Revision(), string(rc.Technique), doc.Text, redacted)
	}
	if verifier != nil {
		res.Report = verifier.VerifyDocument(doc.ID, redacted)
	}

	res.Duration = time.Since(begin)
	return res
}
